package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockProfile returns the user's profile row locked FOR UPDATE until tx ends, creating an
// empty profile on first use. Every write path that touches a user's balance, device or
// access window takes this lock first, which serialises them per user.
func LockProfile(tx *gorm.DB, userID string) (*Profile, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Profile{UserID: userID}).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	var p Profile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to lock profile: %w", err)
	}
	return &p, nil
}
