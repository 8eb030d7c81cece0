package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	"slack-code-review/services"
)

// HandleSlackCommand はスラッシュコマンドを処理する
func (h *ReviewHandler) HandleSlackCommand(c *gin.Context) {
	command, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		log.Printf("slash command parse error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command"})
		return
	}

	log.Printf("slack command received: command=%s, text=%s, channel=%s, user=%s",
		command.Command, command.Text, command.ChannelID, command.UserID)

	if command.Command != h.SlashCommand {
		c.String(http.StatusOK, fmt.Sprintf("unknown command: %s", command.Command))
		return
	}

	ctx := c.Request.Context()

	parts := parseCommand(command.Text)
	subCommand := ""
	if len(parts) > 0 {
		subCommand = strings.ToLower(parts[0])
	}

	switch subCommand {
	case "", "create", "new":
		h.openView(ctx, command.TriggerID, services.CreateReviewModal(command.ChannelID))
		c.Status(http.StatusOK)
	case "list", "incomplete":
		h.listReviews(c, command, services.ListOptions{Post: true})
	case "unapproved":
		h.listReviews(c, command, services.ListOptions{
			Filter: services.UnapprovedReviews,
			Label:  "unapproved",
			Post:   true,
		})
	case "help":
		h.showHelp(c)
	default:
		c.String(http.StatusOK, fmt.Sprintf("unknown subcommand: %s\n\n%s", subCommand, h.helpText()))
	}
}

func (h *ReviewHandler) listReviews(c *gin.Context, command slack.SlashCommand, opts services.ListOptions) {
	if _, err := h.Lister.ListReviews(c.Request.Context(), command.ChannelID, command.UserID, opts); err != nil {
		log.Printf("list reviews error (channel: %s): %v", command.ChannelID, err)
		c.String(http.StatusOK, "Failed to list reviews. Please try again later.")
		return
	}
	c.Status(http.StatusOK)
}

// parseCommand はクォートを考慮してテキストを分割する
func parseCommand(text string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(text); i++ {
		char := text[i]

		switch {
		case char == '"' || char == '\'':
			if !inQuote {
				inQuote = true
				quoteChar = char
			} else if char == quoteChar {
				inQuote = false
				quoteChar = 0
			} else {
				// 異なるクォート文字は普通の文字として扱う
				current.WriteByte(char)
			}
		case (char == ' ' || char == '\t') && !inQuote:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

func (h *ReviewHandler) helpText() string {
	return fmt.Sprintf(`*PR Code Review Bot*
• %[1]s - Open the form to post a new PR Code Review
• %[1]s list - Show the incomplete PR Code Reviews in this channel (only visible to you)
• %[1]s unapproved - Show the PR Code Reviews that are neither approved nor declined
• %[1]s help - Show this message`, h.SlashCommand)
}

// ヘルプメッセージを表示
func (h *ReviewHandler) showHelp(c *gin.Context) {
	c.String(http.StatusOK, h.helpText())
}
