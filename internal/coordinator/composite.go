package coordinator

import (
	"strings"

	"github.com/vselutin/lineage/internal/resolve"
)

// UnitsFromComposite строит батч юнитов из развёрнутой группы и
// разрешённых значений: по юниту на шаг в объявленном порядке,
// зависимости выводятся из parameter link'ов (sink зависит от
// источника).
func UnitsFromComposite(flat *resolve.Flattened, res *resolve.Resolution) []Unit {
	stepIndex := make(map[string]int, len(flat.Steps))
	units := make([]Unit, 0, len(flat.Steps))

	for i, stepPath := range flat.Steps {
		units = append(units, Unit{
			Plan:   flat.PlanAt(stepPath),
			Values: res.ValuesForPlan(stepPath),
		})
		stepIndex[stepPath] = i
	}

	seen := make(map[[2]int]bool)
	for _, link := range flat.Links {
		sourceStep, ok := stepIndex[stepPath(link.Source)]
		if !ok {
			continue
		}
		for _, sink := range link.Sinks {
			sinkStep, ok := stepIndex[stepPath(sink)]
			if !ok || sinkStep == sourceStep {
				continue
			}
			edge := [2]int{sourceStep, sinkStep}
			if seen[edge] {
				continue
			}
			seen[edge] = true
			units[sinkStep].DependsOn = append(units[sinkStep].DependsOn, sourceStep)
		}
	}
	return units
}

// stepPath отрезает имя параметра от dotted-пути листа.
func stepPath(leafPath string) string {
	idx := strings.LastIndex(leafPath, ".")
	if idx < 0 {
		return leafPath
	}
	return leafPath[:idx]
}
