// naming.go owns the partition naming scheme. The derivation must be
// injective with respect to the registry's case-insensitive name uniqueness:
// two tenants that may coexist must never derive the same partition id.
package lifecycle

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// PartitionPrefix marks every partition this service manages. The reconciler
// uses it to scan for orphaned partitions without touching foreign collections.
const PartitionPrefix = "org_"

// NormalizeName returns the canonical form of a tenant name used for
// uniqueness comparison: trimmed and lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PartitionFor derives the partition id for a tenant name:
//
//	org_<slug>_<fnv32a hex>
//
// The slug keeps the id readable in a collection listing: lowercased, every
// run of non-alphanumeric characters collapsed to a single underscore. The
// slug alone is not injective ("Acme Corp" and "Acme-Corp" collide), so the
// FNV-1a hash of the exact normalized name is appended. Distinct normalized
// names therefore yield distinct ids, which together with the registry's
// unique index on the normalized name guarantees no two coexisting tenants
// share a partition.
func PartitionFor(name string) string {
	normalized := NormalizeName(name)

	var b strings.Builder
	lastUnderscore := true // trims leading separators
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "_")
	if slug == "" {
		slug = "org"
	}

	h := fnv.New32a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("%s%s_%08x", PartitionPrefix, slug, h.Sum32())
}
