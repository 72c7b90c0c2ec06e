package ports

import "time"

// ModeStats holds a user's per-gamemode ranked statistics.
type ModeStats struct {
	Mode          uint8
	RankedScore   int64
	TotalScore    int64
	PlayCount     int32
	Accuracy      float64
	MaxCombo      int32
	PerformancePoints float64
}

// UserRecord is the persisted shape of a registered account, as read or
// written across the Persistence boundary. The login pipeline hydrates a
// session.BanchoSession from one of these; nothing else in the core holds
// a UserRecord directly for longer than a single lookup.
type UserRecord struct {
	ID             int32
	Name           string
	SafeName       string
	PasswordBcrypt string
	Privileges     Privileges
	Country        string
	SilenceEnd     time.Time
	DonorEnd       time.Time
	ClanID         int32
	ClanPrivileges ClanPrivileges
	APIKey         string
	LatestActivity time.Time
	Stats          map[uint8]ModeStats
}

// RelationshipKind distinguishes a friend entry from a block entry.
type RelationshipKind uint8

const (
	RelationshipFriend RelationshipKind = iota
	RelationshipBlock
)

// Relationship is one directed friend or block edge between two users.
type Relationship struct {
	User1ID int32
	User2ID int32
	Kind    RelationshipKind
}

// MailMessage is an offline chat message awaiting delivery on next login.
type MailMessage struct {
	FromID int32
	ToID   int32
	Body   string
	Time   time.Time
	Read   bool
}

// AuditAction names the kind of moderation action an AuditLogEntry records.
type AuditAction string

const (
	ActionRestrict   AuditAction = "restrict"
	ActionUnrestrict AuditAction = "unrestrict"
	ActionSilence    AuditAction = "silence"
	ActionUnsilence  AuditAction = "unsilence"
	ActionNote       AuditAction = "note"
)

// AuditLogEntry records a staff action taken against a user.
type AuditLogEntry struct {
	FromID  int32
	ToID    int32
	Action  AuditAction
	Message string
	Time    time.Time
}

// ChannelRecord is the persisted definition of a static channel, loaded
// once at startup into the channel registry.
type ChannelRecord struct {
	Name      string
	Topic     string
	ReadPriv  Privileges
	WritePriv Privileges
	AutoJoin  bool
}

// TourneyPool is a named collection of mappool entries used by tournament
// matches to resolve a (mods, slot) pair to a beatmap.
type TourneyPool struct {
	ID        int32
	Name      string
	CreatedBy int32
	CreatedAt time.Time
}

// TourneyPoolMap is one (mods, slot) -> beatmap id entry within a pool.
type TourneyPoolMap struct {
	PoolID int32
	MapID  int32
	Mods   int32
	Slot   int
}
