package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate checks cfg using struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if cfg.Archive.Root == "" {
		return ErrNoArchive
	}
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	root, err := filepath.Abs(cfg.Archive.Root)
	if err != nil {
		return fmt.Errorf("archive.root: %w", err)
	}
	// Walking "/" would treat the whole filesystem as the archive.
	if root == filepath.VolumeName(root)+string(filepath.Separator) {
		return fmt.Errorf("archive.root: %q is too broad", root)
	}

	trash, err := filepath.Abs(cfg.Trash.Dir)
	if err != nil {
		return fmt.Errorf("trash.dir: %w", err)
	}
	if trash == root {
		return fmt.Errorf("trash.dir: must not be the archive root")
	}

	if strings.ContainsAny(cfg.Archive.IndexName, `\`) || cfg.Archive.IndexName == "." || cfg.Archive.IndexName == ".." {
		return fmt.Errorf("archive.index_name: %q is not a plain file name", cfg.Archive.IndexName)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
