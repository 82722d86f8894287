package models

type Rest_Guild_Streamers struct {
	GuildID   string
	Streamers map[string][]string
}

type Rest_Health struct {
	Status        string
	Version       string
	Watches       int
	PendingWrites int
}
