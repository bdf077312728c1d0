package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"coin-reward-system/utils"
)

// MembershipChecker answers "is this user currently a member of the
// configured channel". Implementations must treat any failure of the
// underlying check as "not a member"; deny is the only safe default.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) bool
}

// ChannelMembershipClient consults the chat platform's Bot API for
// channel membership. The check is a possibly-slow external call, so
// the client carries a short timeout of its own.
type ChannelMembershipClient struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

// NewChannelMembershipClient builds a client for the channel named by
// the invite link. Returns nil when the token or channel is missing;
// a nil client denies every membership check.
func NewChannelMembershipClient(botToken, channelLink string) *ChannelMembershipClient {
	channel := extractChannelUsername(channelLink)
	if botToken == "" || channel == "" {
		return nil
	}
	if !strings.HasPrefix(channel, "@") {
		channel = "@" + channel
	}
	return &ChannelMembershipClient{
		BotToken: botToken,
		ChatID:   channel,
		Client:   utils.HTTPClient,
	}
}

// extractChannelUsername takes the last path segment of an invite link,
// e.g. "https://t.me/SomeChannel" → "SomeChannel".
func extractChannelUsername(link string) string {
	link = strings.TrimRight(link, "/")
	if idx := strings.LastIndex(link, "/"); idx >= 0 {
		return link[idx+1:]
	}
	return link
}

type chatMemberResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		Status string `json:"status"`
	} `json:"result"`
}

// IsMember calls getChatMember and reports whether the user holds a
// member, administrator or creator status. Any transport or API error
// reads as not-a-member.
func (c *ChannelMembershipClient) IsMember(ctx context.Context, userID int64) bool {
	if c == nil || c.BotToken == "" || c.ChatID == "" {
		return false
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/getChatMember?chat_id=%s&user_id=%d",
		c.BotToken, url.QueryEscape(c.ChatID), userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		log.Printf("membership check error for %d: %v", userID, err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Printf("membership check returned %d: %s", resp.StatusCode, string(body))
		return false
	}

	var out chatMemberResponse
	if err := json.Unmarshal(body, &out); err != nil || !out.OK {
		return false
	}

	switch out.Result.Status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}
