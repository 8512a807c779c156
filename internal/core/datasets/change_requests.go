package datasets

import "github.com/JonMunkholm/featuresync/internal/core"

// ChangeRequests is the key of the space change request layer.
const ChangeRequests = "change_requests"

func init() {
	registerChangeRequests()
}

func registerChangeRequests() {
	core.Register(core.DatasetDefinition{
		Key:             ChangeRequests,
		Label:           "Change Requests",
		Table:           "change_requests",
		IdentifierField: "objectid",
		EditableFields:  core.EditableFieldSet{"room_name", "use_type_new", "status"},
		DateFields:      []string{"CreationDate", "EditDate", "date_submitted"},
		FieldSpecs: []core.FieldSpec{
			{Name: "objectid", Type: core.FieldNumeric},
			{Name: "room_name", Type: core.FieldText},
			{Name: "use_type_new", Type: core.FieldText},
			{Name: "status", Type: core.FieldText},
			{Name: "date_submitted", Type: core.FieldDate},
			{Name: "CreationDate", DBColumn: "creation_date", Type: core.FieldDate},
			{Name: "Creator", DBColumn: "creator", Type: core.FieldText},
			{Name: "EditDate", DBColumn: "edit_date", Type: core.FieldDate},
			{Name: "Editor", DBColumn: "editor", Type: core.FieldText},
		},
		Geometry: core.Geometry{XColumn: "x", YColumn: "y"},
	})
}
