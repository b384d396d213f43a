package router

import "sort"

// APIModule / AdminModule 模块按需实现其一或两者
type APIModule interface{ MountAPI(EZ) }
type AdminModule interface{ MountAdmin(EZ) }

// prioritizer 数值小的先挂，未实现按 100
type prioritizer interface{ Priority() int }

// Registry 每个引擎一份，挂载顺序按优先级稳定排序
type Registry struct {
	api   []APIModule
	admin []AdminModule
}

func (r *Registry) Register(mods ...any) {
	for _, mod := range mods {
		if m, ok := mod.(APIModule); ok {
			r.api = append(r.api, m)
		}
		if m, ok := mod.(AdminModule); ok {
			r.admin = append(r.admin, m)
		}
	}
}

func (r *Registry) MountAPI(e EZ) {
	mods := append([]APIModule(nil), r.api...)
	sort.SliceStable(mods, func(i, j int) bool { return priorityOf(mods[i]) < priorityOf(mods[j]) })
	for _, m := range mods {
		m.MountAPI(e)
	}
}

func (r *Registry) MountAdmin(e EZ) {
	mods := append([]AdminModule(nil), r.admin...)
	sort.SliceStable(mods, func(i, j int) bool { return priorityOf(mods[i]) < priorityOf(mods[j]) })
	for _, m := range mods {
		m.MountAdmin(e)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
