package plugins

import "sort"

// Registry — иммутабельный снимок загруженных плагинов.
//
// После публикации снимок не мутируется: reload строит новый Registry
// целиком и заменяет указатель. Читатели работают со своим снимком без
// блокировок.
type Registry struct {
	byID    map[PluginConfigID]*Instance
	ordered []*Instance
}

// newRegistry строит снимок из списка экземпляров, упорядочивая их по
// (Order, ID) — порядок выполнения в event pipeline.
func newRegistry(instances []*Instance) *Registry {
	ordered := make([]*Instance, len(instances))
	copy(ordered, instances)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Order != ordered[j].Order {
			return ordered[i].Order < ordered[j].Order
		}
		return ordered[i].ID < ordered[j].ID
	})

	byID := make(map[PluginConfigID]*Instance, len(ordered))
	for _, inst := range ordered {
		byID[inst.ID] = inst
	}

	return &Registry{byID: byID, ordered: ordered}
}

// Get возвращает экземпляр по идентификатору конфигурации.
func (r *Registry) Get(id PluginConfigID) (*Instance, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

// Ordered возвращает экземпляры в порядке выполнения pipeline.
// Слайс принадлежит снимку и не должен мутироваться.
func (r *Registry) Ordered() []*Instance {
	return r.ordered
}

// Len возвращает число загруженных плагинов.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// IDs возвращает идентификаторы всех загруженных конфигураций.
func (r *Registry) IDs() []PluginConfigID {
	ids := make([]PluginConfigID, 0, len(r.ordered))
	for _, inst := range r.ordered {
		ids = append(ids, inst.ID)
	}
	return ids
}
