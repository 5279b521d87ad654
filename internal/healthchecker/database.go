package healthchecker

import (
	"git.brightsales.dev/crm/golang/callweaver/internal/database"
)

func CheckDB() error {
	_, err := database.NewDatabase()
	return err
}
