package services

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/slack-go/slack"
)

// ChannelDirectory はチャンネル名をキャッシュ付きで引く
type ChannelDirectory struct {
	Slack SlackAPI
	cache *cache.Cache
}

// NewChannelDirectory は ttl の間チャンネル情報をキャッシュする
func NewChannelDirectory(api SlackAPI, ttl time.Duration) *ChannelDirectory {
	return &ChannelDirectory{
		Slack: api,
		cache: cache.New(ttl, 2*ttl),
	}
}

// ChannelName はチャンネル名を返す。取得できない場合は空文字
func (d *ChannelDirectory) ChannelName(ctx context.Context, channelID string) string {
	if name, ok := d.cache.Get(channelID); ok {
		return name.(string)
	}

	channel, err := d.Slack.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		log.Printf("conversations.info error (channel: %s): %v", channelID, err)
		return ""
	}

	d.cache.Set(channelID, channel.Name, cache.DefaultExpiration)
	return channel.Name
}
