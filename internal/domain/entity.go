package domain

// ContentID — идентичность содержимого файла (hex-кодированный checksum).
//
// Вычисляется VCS-коллаборатором; движок трактует значение как
// непрозрачную строку и сравнивает только на равенство.
type ContentID string

// Entity — файл в определённый момент истории проекта.
//
// Entity неизменяема: новая запись по тому же пути создаёт новую
// Entity, а не мутирует старую. Generation более позднего Activity
// по тому же пути неявно вытесняет (supersedes) Entity,
// порождённую более ранним Activity.
type Entity struct {
	// Path — путь файла относительно корня проекта.
	Path string `json:"path"`

	// Checksum — идентичность содержимого на момент фиксации.
	Checksum ContentID `json:"checksum"`
}

// SamePath возвращает true, если обе entity указывают на один путь.
func (e Entity) SamePath(other Entity) bool {
	return e.Path == other.Path
}
