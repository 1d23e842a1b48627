package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Level sets used by the symptom tables.
var (
	YesNo    = []string{"No", "Yes"}
	Severity = []string{"None", "Mild", "Moderate", "Severe"}
)

// Symptom column groups of the simulated table.
var (
	// SeveritySymptoms are recorded as unordered labels in the raw table and
	// are meant to be coerced to Ordinal with the Severity level order.
	SeveritySymptoms = []string{"Weakness", "CoughIntensity", "Myalgia"}
	// RedundantSymptoms are Yes/No re-encodings of the severity symptoms.
	RedundantSymptoms = []string{"WeaknessYN", "CoughYN", "CoughYN2", "MyalgiaYN"}
)

type binarySymptom struct {
	name       string
	base, load float64
}

var binarySymptoms = []binarySymptom{
	{"SwollenLymphNodes", -0.5, 0.3},
	{"ChestCongestion", 0.1, 0.4},
	{"ChillsSweats", 1.2, 0.6},
	{"NasalCongestion", 0.8, 0.2},
	{"Sneeze", 0.2, 0.1},
	{"Fatigue", 2.3, 0.6},
	{"SubjectiveFever", 1.0, 0.8},
	{"Headache", 1.6, 0.5},
	{"RunnyNose", 0.9, 0.1},
	{"AbPain", -2.0, 0.5},
	{"ChestPain", -1.0, 0.4},
	{"Diarrhea", -2.0, 0.4},
	{"EyePn", -1.8, 0.4},
	{"Insomnia", 0.0, 0.4},
	{"ItchyEye", -1.1, 0.2},
	{"EarPn", -1.3, 0.3},
	{"Pharyngitis", 1.1, 0.3},
	{"Breathless", -0.7, 0.5},
	{"ToothPn", -1.6, 0.3},
	{"Vomit", -2.2, 0.6},
	{"Wheeze", -0.7, 0.4},
	{"Hearing", -3.3, 0.3},
	{"Vision", -3.6, 0.3},
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// SimulateSymptoms generates an influenza-like-illness visit table shaped like
// the clinical data the workflow was built for: one row per visit with a
// "Unique.Visit" id, Yes/No symptoms (two of them rare), three severity
// symptoms stored as unordered labels plus their redundant Yes/No versions,
// an activity score, body temperature (°F) and nausea. About 1% of the
// severity labels and 0.5% of temperatures are missing.
//
// The same seed always yields the same table.
func SimulateSymptoms(n int, seed uint64) (*Table, error) {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	ids := make([]string, n)
	severity := make([]float64, n)
	for i := range severity {
		ids[i] = fmt.Sprintf("V%05d", i+1)
		severity[i] = r.NormFloat64()
	}

	present := make(map[string][]bool, len(binarySymptoms))
	cols := make([]*Column, 0, len(binarySymptoms)+12)
	idCol, err := NewCategorical("Unique.Visit", Nominal, ids, ids)
	if err != nil {
		return nil, err
	}
	cols = append(cols, idCol)

	for _, s := range binarySymptoms {
		flags := make([]bool, n)
		labels := make([]string, n)
		for i := range flags {
			flags[i] = r.Float64() < logistic(s.base+s.load*severity[i])
			labels[i] = yesNo(flags[i])
		}
		present[s.name] = flags
		c, err := NewCategorical(s.name, Binary, YesNo, labels)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}

	offsets := map[string]float64{"Weakness": 0.3, "CoughIntensity": 0.6, "Myalgia": 0.3}
	grades := make(map[string][]int, len(SeveritySymptoms))
	for _, name := range SeveritySymptoms {
		g := make([]int, n)
		labels := make([]string, n)
		for i := range g {
			z := 0.8*severity[i] + r.NormFloat64() + offsets[name]
			switch {
			case z < -1:
				g[i] = 0
			case z < 0.2:
				g[i] = 1
			case z < 1.2:
				g[i] = 2
			default:
				g[i] = 3
			}
			labels[i] = Severity[g[i]]
			if r.Float64() < 0.01 {
				labels[i] = ""
			}
		}
		grades[name] = g
		c, err := NewCategorical(name, Nominal, Severity, labels)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}

	redundantOf := map[string]string{
		"WeaknessYN": "Weakness",
		"CoughYN":    "CoughIntensity",
		"CoughYN2":   "CoughIntensity",
		"MyalgiaYN":  "Myalgia",
	}
	for _, name := range RedundantSymptoms {
		g := grades[redundantOf[name]]
		labels := make([]string, n)
		for i := range labels {
			labels[i] = yesNo(g[i] > 0)
		}
		c, err := NewCategorical(name, Binary, YesNo, labels)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}

	activity := make([]float64, n)
	temp := make([]float64, n)
	nausea := make([]string, n)
	for i := 0; i < n; i++ {
		activity[i] = math.Round(math.Max(0, math.Min(10, 5-1.5*severity[i]+2*r.NormFloat64())))

		t := 98.3 + 0.25*severity[i] + 0.6*r.NormFloat64()
		if present["SubjectiveFever"][i] {
			t += 0.55
		}
		if present["ChillsSweats"][i] {
			t += 0.35
		}
		if r.Float64() < 0.1 {
			t += 1.2 * math.Abs(r.NormFloat64())
		}
		temp[i] = math.Round(t*10) / 10
		if r.Float64() < 0.005 {
			temp[i] = math.NaN()
		}

		logit := -1.4 + 0.3*severity[i]
		if present["Vomit"][i] {
			logit += 1.6
		}
		if present["AbPain"][i] {
			logit += 0.9
		}
		if present["Diarrhea"][i] {
			logit += 0.7
		}
		nausea[i] = yesNo(r.Float64() < logistic(logit))
	}
	cols = append(cols, NewContinuous("ActivityLevel", activity), NewContinuous("BodyTemp", temp))
	nauseaCol, err := NewCategorical("Nausea", Binary, YesNo, nausea)
	if err != nil {
		return nil, err
	}
	cols = append(cols, nauseaCol)

	return New(cols...)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
