package griddata

// EnsureMode controls how schema checks are enforced when ensuring collections.
type EnsureMode string

const (
	// EnsureStrict fails when the existing schema does not match.
	EnsureStrict EnsureMode = "strict"
	// EnsureAutoMigrate adds missing columns where possible.
	EnsureAutoMigrate EnsureMode = "auto_migrate"
)

// CollectionSpec names a physical collection and how to ensure it.
type CollectionSpec struct {
	Name string
	Mode EnsureMode
}

// DefaultMode resolves an empty mode from the store's strictness default.
func DefaultMode(mode EnsureMode, strictByDefault bool) EnsureMode {
	if mode != "" {
		return mode
	}
	if strictByDefault {
		return EnsureStrict
	}
	return EnsureAutoMigrate
}
