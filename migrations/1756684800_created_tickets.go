package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.EmailField{Name: "mail", Required: true},
			&core.TextField{Name: "university_id", Required: true},
			&core.TextField{Name: "issued_by_name"},
			&core.TextField{Name: "issued_by_email"},
			&core.TextField{Name: "ticket_number", Required: true},
			&core.NumberField{Name: "serial_number", Required: true, OnlyInt: true},
			&core.BoolField{Name: "is_valid"},
			&core.DateField{Name: "scanned_at"},
			&core.TextField{Name: "qr_code"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// Both identifier spaces are enforced here, not in application code.
		collection.AddIndex("idx_tickets_ticket_number", true, "ticket_number", "")
		collection.AddIndex("idx_tickets_serial_number", true, "serial_number", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
