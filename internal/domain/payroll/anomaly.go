package payroll

import (
	"math"
	"sort"

	"paydesk/internal/domain/money"
)

// DetectAnomalies flags employees whose salary, performance or latest bonus
// lies more than threshold standard deviations from the population mean.
func DetectAnomalies(samples []CompensationSample, threshold float64) []Anomaly {
	if len(samples) < 3 || threshold <= 0 {
		return []Anomaly{}
	}

	salaries := make([]float64, len(samples))
	performance := make([]float64, len(samples))
	bonuses := make([]float64, len(samples))
	for i, s := range samples {
		salaries[i] = s.Salary.InexactFloat64()
		performance[i] = s.Performance.InexactFloat64()
		bonuses[i] = s.Bonus.InexactFloat64()
	}
	salaryMean, salaryStd := meanStd(salaries)
	perfMean, perfStd := meanStd(performance)
	bonusMean, bonusStd := meanStd(bonuses)

	out := []Anomaly{}
	for i, s := range samples {
		salaryZ := zScore(salaries[i], salaryMean, salaryStd)
		perfZ := zScore(performance[i], perfMean, perfStd)
		bonusZ := zScore(bonuses[i], bonusMean, bonusStd)

		var reasons []string
		if math.Abs(salaryZ) > threshold {
			reasons = append(reasons, "salary")
		}
		if math.Abs(perfZ) > threshold {
			reasons = append(reasons, "performance")
		}
		if math.Abs(bonusZ) > threshold {
			reasons = append(reasons, "bonus")
		}
		if len(reasons) == 0 {
			continue
		}
		out = append(out, Anomaly{
			EmployeeID:   s.EmployeeID,
			EmployeeName: s.EmployeeName,
			Salary:       money.NewAmount(s.Salary),
			Performance:  s.Performance.StringFixed(3),
			Bonus:        money.NewAmount(s.Bonus),
			Reasons:      reasons,
			SalaryZ:      round3(salaryZ),
			PerformanceZ: round3(perfZ),
			BonusZ:       round3(bonusZ),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return maxAbs(out[i]) > maxAbs(out[j])
	})
	return out
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func zScore(v, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}

func maxAbs(a Anomaly) float64 {
	return math.Max(math.Abs(a.SalaryZ), math.Max(math.Abs(a.PerformanceZ), math.Abs(a.BonusZ)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
