package versions

import (
	"log"

	"docvault/docvault/schema"

	"gorm.io/gorm"
)

func migrateUsers(txn *gorm.DB) error {
	log.Println("migrating table 'users'")

	type User struct {
		LoginSource   string  `gorm:"size:100;not null;default:'email'"`
		GoogleSubject *string `gorm:"uniqueIndex:udx_users_google_subject,where:status <> 'deleted';size:255"`
		AppleSubject  *string `gorm:"uniqueIndex:udx_users_apple_subject,where:status <> 'deleted';size:255"`
	}

	for _, col := range []string{"LoginSource", "GoogleSubject", "AppleSubject"} {
		if err := txn.Migrator().AddColumn(&User{}, col); err != nil {
			return err
		}
	}

	// Accounts created before federated login all used passwords.
	err := txn.Model(&User{}).Where("login_source IS NULL OR login_source = ''").
		Update("login_source", schema.LoginSourceEmail).Error
	if err != nil {
		return err
	}

	log.Println("table 'users' migration complete")

	return nil
}

func Migration_1_federated_identity(txn *gorm.DB) error {
	log.Println("performing migration for federated identity columns")

	if err := migrateUsers(txn); err != nil {
		return err
	}

	if err := txn.Migrator().AutoMigrate(&schema.User{}, &schema.UserDocument{}); err != nil {
		return err
	}

	log.Println("federated identity migration complete")

	return nil
}
