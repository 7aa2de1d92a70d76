package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("counters")

		collection.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.NumberField{Name: "value", OnlyInt: true},
		)

		// The unique name is what the serial upsert-increment conflicts on.
		collection.AddIndex("idx_counters_name", true, "name", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("counters")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
