// config_features.go - Feature-Flags und Limits
//
// Dieses Modul enthaelt:
// - Feature-Flags (NoHistory)
// - Limits fuer Sessions und Gewichts-Cache
package envconfig

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// NoHistory deaktiviert das Speichern exportierter Runs
	NoHistory = Bool("SANDBOX_NOHISTORY")
)

// =============================================================================
// Limits
// =============================================================================

var (
	// MaxSessions begrenzt die Anzahl gleichzeitiger Sessions (je ein Worker)
	MaxSessions = Uint("SANDBOX_MAX_SESSIONS", 64)

	// WeightCache ist die Anzahl gecachter Gewichts-Saetze pro Worker (0 = aus)
	WeightCache = Uint("SANDBOX_WEIGHT_CACHE", 4)
)
