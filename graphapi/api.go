package graphapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// RequestTimeout bounds the profile and story fetches; they run inside the
// ingestion critical section.
const RequestTimeout = 10 * time.Second

type Client struct {
	BaseURL string

	HTTP *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return errors.New("too many (>=10) redirects, cancelling request")
				}
				return nil
			},
		},
	}
}

func (c *Client) makeURL(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = path.Join(u.Path, endpoint)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// GetProfile fetches the public profile of a platform user. accessToken is
// the page/IG token of the channel the event arrived on.
func (c *Client) GetProfile(ctx context.Context, accessToken, userID string) (*Profile, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "graph_get_profile").
		Str("user_id", userID).
		Logger()

	query := url.Values{}
	query.Set("fields", "name,first_name,last_name,username,profile_pic")
	query.Set("access_token", accessToken)
	uri, err := c.makeURL(userID, query)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := c.getJSON(ctx, uri, &profile); err != nil {
		log.Debug().Err(err).Msg("profile fetch failed")
		return nil, err
	}
	return &profile, nil
}

// GetStory fetches the story referenced by a story-mention message.
func (c *Client) GetStory(ctx context.Context, accessToken, messageID string) (*Story, error) {
	query := url.Values{}
	query.Set("fields", "story,from")
	query.Set("access_token", accessToken)
	uri, err := c.makeURL(messageID, query)
	if err != nil {
		return nil, err
	}

	var msg storyMessage
	if err := c.getJSON(ctx, uri, &msg); err != nil {
		return nil, err
	}
	return &Story{
		ID:     msg.Story.Mention.ID,
		URL:    msg.Story.Mention.Link,
		Sender: msg.From.ID,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, uri string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return &TransientError{Err: fmt.Errorf("graph API returned status %d", resp.StatusCode)}
		}
		var envelope struct {
			Error *GraphError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
			return &TransientError{Err: fmt.Errorf("graph API returned status %d: %s", resp.StatusCode, string(body))}
		}
		envelope.Error.HTTPStatus = resp.StatusCode
		return envelope.Error
	}

	return json.Unmarshal(body, out)
}
