package models

// EnumOption is one selectable value advertised by the backend.
type EnumOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Enums is the catalogue served by GET /enums.
type Enums struct {
	UserRoles      []EnumOption `json:"user_roles"`
	ProjectRoles   []EnumOption `json:"project_roles"`
	TaskPriorities []EnumOption `json:"task_priorities"`
	TaskCategories []EnumOption `json:"task_categories"`
	TaskStatuses   []EnumOption `json:"task_statuses"`
	Colors         []EnumOption `json:"colors"`
}

// DefaultEnums is used when the backend catalogue is unavailable.
// Project roles list only the two canonical tiers.
func DefaultEnums() *Enums {
	e := &Enums{
		UserRoles: []EnumOption{
			{Value: string(RoleAdmin), Label: "Admin"},
			{Value: string(RoleClient), Label: "Client"},
		},
		ProjectRoles: []EnumOption{
			{Value: string(ProjectRoleOwner), Label: "Owner"},
			{Value: string(ProjectRoleViewer), Label: "Viewer"},
		},
		Colors: []EnumOption{
			{Value: "#FFFFFF", Label: "white"},
			{Value: "#000000", Label: "black"},
			{Value: "#FF0000", Label: "red"},
			{Value: "#00FF00", Label: "green"},
			{Value: "#0000FF", Label: "blue"},
			{Value: "#FFFF00", Label: "yellow"},
			{Value: "#FFA500", Label: "orange"},
			{Value: "#800080", Label: "violet"},
		},
	}
	for _, p := range priorities {
		e.TaskPriorities = append(e.TaskPriorities, EnumOption{Value: string(p), Label: string(p)})
	}
	for _, c := range categories {
		e.TaskCategories = append(e.TaskCategories, EnumOption{Value: string(c), Label: string(c)})
	}
	for _, s := range statuses {
		e.TaskStatuses = append(e.TaskStatuses, EnumOption{Value: string(s), Label: string(s)})
	}
	return e
}
