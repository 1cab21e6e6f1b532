package main

import (
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/tphakala/fishnet-go/internal/datastore"
)

// sampleSize is how many rows per table are compared field by field.
const sampleSize = 5

// Verifier performs post-export verification.
type Verifier struct {
	sourceDB *gorm.DB
	targetDB *gorm.DB
	out      io.Writer
}

// NewVerifier creates a new Verifier.
func NewVerifier(sourceDB, targetDB *gorm.DB, out io.Writer) *Verifier {
	return &Verifier{sourceDB: sourceDB, targetDB: targetDB, out: out}
}

// Verify compares row counts and a sample of rows.
func (v *Verifier) Verify() error {
	if err := v.verifyCounts(); err != nil {
		return fmt.Errorf("count verification failed: %w", err)
	}
	if err := v.verifySamples(); err != nil {
		return fmt.Errorf("sample verification failed: %w", err)
	}
	return nil
}

func (v *Verifier) verifyCounts() error {
	fmt.Fprintln(v.out, "\nVerifying record counts...")
	fmt.Fprintf(v.out, "%-25s %12s %12s %8s\n", "Table", "Source", "Target", "Match")
	fmt.Fprintln(v.out, strings.Repeat("-", 60))

	allMatch := true
	for _, t := range tables {
		var sourceCount, targetCount int64
		if err := v.sourceDB.Model(t.model).Count(&sourceCount).Error; err != nil {
			return fmt.Errorf("failed to count source %s: %w", t.name, err)
		}
		if err := v.targetDB.Model(t.model).Count(&targetCount).Error; err != nil {
			return fmt.Errorf("failed to count target %s: %w", t.name, err)
		}

		match := "✓"
		if sourceCount != targetCount {
			match = "✗"
			allMatch = false
		}
		fmt.Fprintf(v.out, "%-25s %12d %12d %8s\n", t.name, sourceCount, targetCount, match)
	}

	if !allMatch {
		return fmt.Errorf("record counts do not match")
	}
	return nil
}

func (v *Verifier) verifySamples() error {
	fmt.Fprintln(v.out, "\nVerifying sample records...")

	if err := v.sampleCollections(); err != nil {
		return fmt.Errorf("fish_collections sampling failed: %w", err)
	}
	if err := v.sampleUsers(); err != nil {
		return fmt.Errorf("user_profiles sampling failed: %w", err)
	}
	return nil
}

// sampleCollections checks the newest captures, including their references.
func (v *Verifier) sampleCollections() error {
	var sources []datastore.FishCollection
	if err := v.sourceDB.Order("id DESC").Limit(sampleSize).Find(&sources).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	for i := range sources {
		src := &sources[i]
		var target datastore.FishCollection
		if err := v.targetDB.First(&target, src.ID).Error; err != nil {
			return fmt.Errorf("collection ID %d not found in target: %w", src.ID, err)
		}
		switch {
		case src.UserID != target.UserID:
			return fmt.Errorf("collection ID %d: UserID mismatch (%d vs %d)", src.ID, src.UserID, target.UserID)
		case src.FishID != target.FishID:
			return fmt.Errorf("collection ID %d: FishID mismatch (%d vs %d)", src.ID, src.FishID, target.FishID)
		case src.ImagePath != target.ImagePath:
			return fmt.Errorf("collection ID %d: ImagePath mismatch (%s vs %s)", src.ID, src.ImagePath, target.ImagePath)
		}
	}

	fmt.Fprintf(v.out, "  fish_collections: %d samples verified\n", len(sources))
	return nil
}

// sampleUsers checks that password hashes survived the copy.
func (v *Verifier) sampleUsers() error {
	var sources []datastore.UserProfile
	if err := v.sourceDB.Order("id DESC").Limit(sampleSize).Find(&sources).Error; err != nil {
		return fmt.Errorf("failed to fetch source samples: %w", err)
	}

	for i := range sources {
		src := &sources[i]
		var target datastore.UserProfile
		if err := v.targetDB.First(&target, src.ID).Error; err != nil {
			return fmt.Errorf("user ID %d not found in target: %w", src.ID, err)
		}
		if src.Username != target.Username || src.Password != target.Password {
			return fmt.Errorf("user ID %d: credentials mismatch", src.ID)
		}
	}

	fmt.Fprintf(v.out, "  user_profiles: %d samples verified\n", len(sources))
	return nil
}
