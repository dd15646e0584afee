package resolve

import (
	"fmt"
)

// Shadow — override, вытесненный parameter link'ом.
//
// Линк всегда побеждает явное значение для связанного input'а;
// вытеснение фиксируется в результате, а не отбрасывается молча.
type Shadow struct {
	// Path — путь параметра, для которого override вытеснен.
	Path string

	// Discarded — отброшенное значение override'а.
	Discarded string

	// LinkSource — путь output-параметра, значение которого победило.
	LinkSource string
}

// Resolution — итог применения default'ов, override'ов и линков.
type Resolution struct {
	// Values — итоговое значение каждого листового параметра
	// (полный dotted-путь → значение; пустые значения опущены).
	Values map[string]string

	// Shadowed — override'ы, вытесненные линками.
	Shadowed []Shadow
}

// ValuesForPlan возвращает значения параметров шага по его
// dotted-пути (имя параметра → значение).
func (r *Resolution) ValuesForPlan(planPath string) map[string]string {
	prefix := planPath + "."
	values := make(map[string]string)
	for path, v := range r.Values {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			values[path[len(prefix):]] = v
		}
	}
	return values
}

// valueOrigin — источник текущего значения параметра при разборе
// приоритетов.
type valueOrigin int

const (
	originDefault valueOrigin = iota // default параметра или маппинга
	originMapping                    // групповой override (через маппинг)
	originLeaf                       // child-path override
)

// Apply применяет override'ы к развёрнутой группе.
//
// Приоритет специфичности: child-path override ("child.param=v")
// всегда побеждает групповой ("param=v") для того же листа,
// независимо от порядка. Конфликт на одной специфичности — ошибка.
// Линки применяются последними и побеждают любые override'ы
// для своих sink'ов.
func Apply(flat *Flattened, overrides map[string]string) (*Resolution, error) {
	values := make(map[string]string)
	origins := make(map[string]valueOrigin)
	groupSource := make(map[string]string) // leaf → имя маппинга, давшего значение

	// 1. Default'ы параметров.
	for _, leaf := range flat.Leaves {
		if leaf.Param.Default != "" {
			values[leaf.Path] = leaf.Param.Default
			origins[leaf.Path] = originDefault
		}
	}

	// 2. Default'ы маппингов (перекрывают default параметра).
	for _, mappingPath := range flat.MappingOrder {
		def, ok := flat.MappingDefaults[mappingPath]
		if !ok {
			continue
		}
		for _, target := range flat.Mappings[mappingPath] {
			values[target] = def
			origins[target] = originDefault
		}
	}

	// 3. Разбор override'ов по специфичности.
	for expr, value := range overrides {
		if flat.Leaf(expr) != nil {
			// child-path: максимальная специфичность, конфликт
			// невозможен (ключи map уникальны)
			values[expr] = value
			origins[expr] = originLeaf
			continue
		}

		targets, ok := flat.Mappings[expr]
		if !ok {
			return nil, newResolutionError(expr+"="+value,
				"path resolves to neither a leaf parameter nor a group mapping", ErrUnresolvable)
		}
		for _, target := range targets {
			switch origins[target] {
			case originLeaf:
				// child-path уже победил, групповое значение игнорируется
			case originMapping:
				if values[target] != value {
					return nil, newResolutionError(expr+"="+value,
						fmt.Sprintf("parameter %q already set to %q via mapping %q",
							target, values[target], groupSource[target]), ErrConflict)
				}
			default:
				values[target] = value
				origins[target] = originMapping
				groupSource[target] = expr
			}
		}
	}

	resolution := &Resolution{Values: values}

	// 4. Линки: значение источника перетекает в sink'и.
	for _, link := range flat.Links {
		sourceValue, ok := values[link.Source]
		if !ok {
			return nil, newResolutionError(link.Source,
				"link source has no value (no default and no override)", ErrUnresolvable)
		}
		for _, sink := range link.Sinks {
			if prev, had := values[sink]; had && origins[sink] != originDefault && prev != sourceValue {
				resolution.Shadowed = append(resolution.Shadowed, Shadow{
					Path:       sink,
					Discarded:  prev,
					LinkSource: link.Source,
				})
			}
			values[sink] = sourceValue
			origins[sink] = originLeaf
		}
	}

	return resolution, nil
}
