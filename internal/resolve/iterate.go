package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// iterIndexToken — литерал, заменяемый нулевым индексом комбинации.
const iterIndexToken = "{iter_index}"

// IterParam — один параметр итерации со списком значений-кандидатов.
type IterParam struct {
	// Name — путь параметра (листовой или имя маппинга).
	Name string

	// Values — значения-кандидаты в порядке объявления.
	Values []string
}

// IterationSpace — упорядоченное пространство итерации.
//
// Порядок параметров — порядок объявления в mapping-файле:
// первый объявленный параметр меняется медленнее всех.
type IterationSpace struct {
	// Params — параметры в порядке объявления.
	Params []IterParam
}

// ParseMapping разбирает YAML mapping-файл вида
//
//	param-a: [1, 2]
//	child.param-b: [x, y]
//
// Декодирование идёт через yaml.Node, чтобы сохранить порядок
// объявления ключей (map его не гарантирует).
func ParseMapping(data []byte) (*IterationSpace, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse iteration mapping: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, ErrEmptyIteration
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, ErrUnorderedMapping
	}

	space := &IterationSpace{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		value := root.Content[i+1]

		param := IterParam{Name: key.Value}
		switch value.Kind {
		case yaml.SequenceNode:
			for _, item := range value.Content {
				param.Values = append(param.Values, item.Value)
			}
		case yaml.ScalarNode:
			// одиночное значение — список из одного элемента
			param.Values = []string{value.Value}
		default:
			return nil, fmt.Errorf("parameter %q: %w", key.Value, ErrUnorderedMapping)
		}

		if len(param.Values) == 0 {
			return nil, fmt.Errorf("parameter %q: %w", key.Value, ErrEmptyIteration)
		}
		space.Params = append(space.Params, param)
	}

	if len(space.Params) == 0 {
		return nil, ErrEmptyIteration
	}
	return space, nil
}

// Size возвращает количество комбинаций (произведение длин списков).
func (s *IterationSpace) Size() int {
	total := 1
	for _, p := range s.Params {
		total *= len(p.Values)
	}
	return total
}

// Expand порождает декартово произведение всех списков: один
// набор параметров на комбинацию, в порядке объявления.
//
// Литерал {iter_index} в любом строковом значении заменяется
// нулевым индексом комбинации.
func (s *IterationSpace) Expand() []map[string]string {
	total := s.Size()
	sets := make([]map[string]string, 0, total)

	for index := 0; index < total; index++ {
		set := make(map[string]string, len(s.Params))

		// смешанная система счисления: первый параметр —
		// старший разряд
		rest := index
		stride := total
		for _, p := range s.Params {
			stride /= len(p.Values)
			pos := rest / stride
			rest %= stride

			set[p.Name] = strings.ReplaceAll(p.Values[pos], iterIndexToken, strconv.Itoa(index))
		}
		sets = append(sets, set)
	}
	return sets
}
