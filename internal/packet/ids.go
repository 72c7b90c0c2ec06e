package packet

// Client-to-server packet ids.
const (
	ChangeAction             uint16 = 0
	SendPublicMessage        uint16 = 1
	Logout                   uint16 = 2
	RequestStatusUpdate      uint16 = 3
	Ping                     uint16 = 4
	StartSpectating          uint16 = 16
	StopSpectating           uint16 = 17
	SpectateFrames           uint16 = 18
	ErrorReport              uint16 = 20
	CantSpectate             uint16 = 21
	SendPrivateMessage       uint16 = 25
	PartLobby                uint16 = 29
	JoinLobby                uint16 = 30
	CreateMatch              uint16 = 31
	JoinMatch                uint16 = 32
	PartMatch                uint16 = 33
	MatchChangeSlot          uint16 = 38
	MatchReady               uint16 = 39
	MatchLock                uint16 = 40
	MatchChangeSettings      uint16 = 41
	MatchStart               uint16 = 44
	MatchScoreUpdate         uint16 = 47
	MatchComplete            uint16 = 49
	MatchChangeMods          uint16 = 51
	MatchLoadComplete        uint16 = 52
	MatchNoBeatmap           uint16 = 54
	MatchNotReady            uint16 = 55
	MatchFailed              uint16 = 56
	MatchHasBeatmap          uint16 = 59
	MatchSkipRequest         uint16 = 60
	ChannelJoin              uint16 = 63
	BeatmapInfoRequest       uint16 = 68
	MatchTransferHost        uint16 = 70
	FriendAdd                uint16 = 73
	FriendRemove             uint16 = 74
	MatchChangeTeam          uint16 = 77
	ChannelPart              uint16 = 78
	ReceiveUpdates           uint16 = 79
	SetAwayMessage           uint16 = 82
	IRCOnly                  uint16 = 84
	UserStatsRequest         uint16 = 85
	MatchInvite              uint16 = 87
	MatchChangePassword      uint16 = 90
	TourneyMatchInfoRequest  uint16 = 93
	UserPresenceRequest      uint16 = 97
	UserPresenceRequestAll   uint16 = 98
	ToggleBlockNonFriendDMs  uint16 = 99
	TourneyJoinMatchChannel  uint16 = 108
	TourneyLeaveMatchChannel uint16 = 109
)

// Server-to-client packet ids.
const (
	UserID                   uint16 = 5
	SendMessage              uint16 = 7
	Pong                     uint16 = 8
	HandleIRCQuit            uint16 = 10
	UserStats                uint16 = 11
	UserLogout               uint16 = 12
	SpectatorJoined          uint16 = 13
	SpectatorLeft            uint16 = 14
	SSpectateFrames          uint16 = 15
	VersionUpdate            uint16 = 19
	SpectatorCantSpectate    uint16 = 22
	GetAttention             uint16 = 23
	Notification             uint16 = 24
	UpdateMatch              uint16 = 26
	NewMatch                 uint16 = 27
	DisposeMatch             uint16 = 28
	SToggleBlockNonFriendDMs uint16 = 34
	MatchJoinSuccess         uint16 = 36
	MatchJoinFail            uint16 = 37
	FellowSpectatorJoined    uint16 = 42
	FellowSpectatorLeft      uint16 = 43
	AllPlayersLoaded         uint16 = 45
	SMatchStart              uint16 = 46
	SMatchScoreUpdate        uint16 = 48
	SMatchTransferHost       uint16 = 50
	MatchAllPlayersLoaded    uint16 = 53
	MatchPlayerFailed        uint16 = 57
	SMatchComplete           uint16 = 58
	MatchSkip                uint16 = 61
	ChannelJoinSuccess       uint16 = 64
	ChannelInfo              uint16 = 65
	ChannelKick              uint16 = 66
	ChannelAutoJoin          uint16 = 67
	BeatmapInfoReply         uint16 = 69
	Privileges               uint16 = 71
	FriendsList              uint16 = 72
	ProtocolVersion          uint16 = 75
	MainMenuIcon             uint16 = 76
	MatchPlayerSkipped       uint16 = 81
	UserPresence             uint16 = 83
	Restart                  uint16 = 86
	SMatchInvite             uint16 = 88
	ChannelInfoEnd           uint16 = 89
	SMatchChangePassword     uint16 = 91
	SilenceEnd               uint16 = 92
	UserSilenced             uint16 = 94
	UserPresenceSingle       uint16 = 95
	UserPresenceBundle       uint16 = 96
	UserDMBlocked            uint16 = 100
	TargetIsSilenced         uint16 = 101
	VersionUpdateForced      uint16 = 102
	SwitchServer             uint16 = 103
	AccountRestricted        uint16 = 104
	MatchAbort               uint16 = 106
	SwitchTourneyServer      uint16 = 107
)
