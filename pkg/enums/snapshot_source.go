package enums

// SnapshotSource records which data source produced a status snapshot.
type SnapshotSource string

const (
	SnapshotSourceSessionClaims SnapshotSource = "SESSION_CLAIMS"
	SnapshotSourceProfileStore  SnapshotSource = "PROFILE_STORE"
	SnapshotSourceDefault       SnapshotSource = "DEFAULT"
)

// String implements fmt.Stringer.
func (s SnapshotSource) String() string {
	return string(s)
}
