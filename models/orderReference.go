package models

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderReferenceSequence is a single-row counter behind order references.
// The row is locked FOR UPDATE inside the admission transaction, so two
// concurrent admissions can never mint the same reference.
type OrderReferenceSequence struct {
	ID        int `gorm:"primary_key" json:"id"`
	LastValue int `gorm:"not null;default:0" json:"last_value"`
}

const orderReferenceSequenceId = 1

var orderReferencePattern = regexp.MustCompile(`^ORD\d{5}$`)

// IsOrderReference reports whether s is a well-formed order reference.
// Anything else submitted in the reference field is treated as a label to
// replace, never as an update key.
func IsOrderReference(s string) bool {
	return orderReferencePattern.MatchString(s)
}

func FormatOrderReference(n int) string {
	return fmt.Sprintf("ORD%05d", n)
}

// nextOrderReferenceTx mints the next reference within tx. The row is
// seeded by MigrateTable; FirstOrCreate covers databases migrated before
// the seed existed without racing on the insert.
func nextOrderReferenceTx(tx *gorm.DB) (string, error) {
	var seq OrderReferenceSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(OrderReferenceSequence{ID: orderReferenceSequenceId}).
		FirstOrCreate(&seq).Error
	if err != nil {
		return "", err
	}

	next := seq.LastValue + 1
	if err := tx.Model(&seq).Update("last_value", next).Error; err != nil {
		return "", err
	}
	return FormatOrderReference(next), nil
}
