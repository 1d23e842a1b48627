package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Save はエクスポートされたフィールドのみを持つ値を gob 形式でファイルに保存する。
// チューニング結果のチェックポイントに使われる。
//
//	err := model.Save(results, "results.gob")
func Save(v interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	if err := SaveToWriter(v, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Load はファイルから gob 形式の値を v（ポインタ）に読み込む。
func Load(v interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()
	return LoadFromReader(v, file)
}

// SaveToWriter は v を gob 形式で w に書き出す。
func SaveToWriter(v interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %T", v)
	}
	return nil
}

// LoadFromReader は r から gob 形式の値を v に読み込む。
func LoadFromReader(v interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrapf(err, "failed to decode %T", v)
	}
	return nil
}
