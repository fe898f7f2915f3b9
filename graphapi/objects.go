package graphapi

import "strings"

// Profile is the subset of the graph user object the pipeline cares about.
// Messenger profiles carry first_name/last_name; Instagram profiles carry a
// single name field.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	ProfilePic string `json:"profile_pic"`
}

func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Username
}

// Story describes the story referenced by a story-mention message.
type Story struct {
	ID     string
	URL    string
	Sender string
}

// storyMessage is the wire shape of GET /{message-id}?fields=story,from.
type storyMessage struct {
	ID    string `json:"id"`
	Story struct {
		Mention struct {
			ID   string `json:"id"`
			Link string `json:"link"`
		} `json:"mention"`
	} `json:"story"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}
