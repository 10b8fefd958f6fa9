package processing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"wabridge/internal/backend"
	"wabridge/internal/models"
	"wabridge/internal/whatsapp"
)

// Typing indicators expire on WhatsApp after about 28 seconds, so the loop
// refreshes just under that. The cap bounds how long a user sees "typing"
// when generation runs long.
const (
	typingRefreshInterval = 26 * time.Second
	typingIndicatorCap    = 5 * time.Minute
)

const (
	replyMaintenance = "The assistant is under maintenance right now. Please try again later."
	replyUnsupported = "Sorry, I can only understand text messages for now. Please send your question as text."
	replyLocation    = "Thank you for sharing your location. Answers that depend on where you are will now use it."
	replyError       = "Sorry, something went wrong while processing your message. Please try again."
	replyEmpty       = "Sorry, I could not come up with a response. Please try rephrasing your question."
)

// stagingPrefix marks messages addressed to a staging deployment. Staging
// only handles prefixed messages and production ignores them, so one WhatsApp
// number can serve both without double replies.
const stagingPrefix = "!d "

// Conversation runs one full turn for an inbound message: registration,
// thread selection, backend processing, and the reply.
type Conversation struct {
	logger        *log.Logger
	backend       backend.Client
	sender        whatsapp.Sender
	retention     time.Duration
	deployment    string
	maintenanceOn bool
}

func NewConversation(logger *log.Logger, bc backend.Client, sender whatsapp.Sender,
	retention time.Duration, deployment string, maintenanceOn bool) *Conversation {
	return &Conversation{
		logger:        logger,
		backend:       bc,
		sender:        sender,
		retention:     retention,
		deployment:    deployment,
		maintenanceOn: maintenanceOn,
	}
}

// Handle processes one inbound message. A nil return means the turn is done
// and must not be retried; an error means a transient failure worth a retry.
func (c *Conversation) Handle(ctx context.Context, msg *models.InboundMessage) error {
	body, routed := c.routeForDeployment(msg.Body)
	if !routed {
		return nil
	}

	stopTyping := c.startTypingLoop(ctx, msg.Sender, msg.DeliveryID)
	defer stopTyping()

	if c.maintenanceOn {
		return c.reply(ctx, msg.Sender, replyMaintenance)
	}

	if err := c.ensureRegistered(ctx, msg.Sender, body); err != nil {
		return err
	}

	switch msg.MessageType {
	case whatsapp.TypeText:
		return c.handleText(ctx, msg.Sender, body)
	case whatsapp.TypeLocation:
		return c.handleLocation(ctx, msg.Sender, msg.Latitude, msg.Longitude)
	default:
		return c.reply(ctx, msg.Sender, replyUnsupported)
	}
}

// routeForDeployment applies the staging prefix convention. It returns the
// body to process and whether this deployment should handle the message.
func (c *Conversation) routeForDeployment(body string) (string, bool) {
	prefixed := strings.HasPrefix(body, stagingPrefix)
	if c.deployment == "staging" {
		if !prefixed {
			return "", false
		}
		return strings.TrimPrefix(body, stagingPrefix), true
	}
	if prefixed {
		c.logger.Printf("Ignoring staging-prefixed message on %s deployment", c.deployment)
		return "", false
	}
	return body, true
}

// startTypingLoop marks the message read and keeps the typing indicator alive
// until the returned stop function is called, the cap elapses, or ctx ends.
func (c *Conversation) startTypingLoop(ctx context.Context, phone, messageID string) func() {
	loopCtx, cancel := context.WithTimeout(ctx, typingIndicatorCap)

	go func() {
		if err := c.sender.SendTypingIndicator(loopCtx, phone, messageID); err != nil {
			c.logger.Printf("Typing indicator failed for %s: %v", phone, err)
		}
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := c.sender.SendTypingIndicator(loopCtx, phone, messageID); err != nil {
					c.logger.Printf("Typing indicator failed for %s: %v", phone, err)
				}
			}
		}
	}()

	return cancel
}

func (c *Conversation) ensureRegistered(ctx context.Context, phone, body string) error {
	exists, err := c.backend.UserExists(ctx, phone)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	lang := whatsapp.DetectLanguage(body)
	c.logger.Printf("Registering new user %s (language: %s)", phone, lang)
	return c.backend.RegisterUser(ctx, phone, lang)
}

func (c *Conversation) handleText(ctx context.Context, phone, body string) error {
	threadID, err := c.selectThread(ctx, phone, body)
	if err != nil {
		return err
	}

	response, err := c.backend.ProcessMessage(ctx, phone, threadID, body)
	if err != nil {
		return err
	}

	// Check after formatting: markup stripping can leave nothing to send.
	formatted := whatsapp.FormatForWhatsApp(response)
	if strings.TrimSpace(formatted) == "" {
		c.logger.Printf("Backend returned empty response for %s, thread %s", phone, threadID)
		return c.reply(ctx, phone, replyEmpty)
	}

	return c.reply(ctx, phone, formatted)
}

// selectThread reuses the user's last thread while it is inside the retention
// window, otherwise starts a fresh one. A stale thread keeps its history; it
// just stops accumulating new turns.
func (c *Conversation) selectThread(ctx context.Context, phone, body string) (string, error) {
	info, err := c.backend.LastThreadInfo(ctx, phone)
	if err != nil {
		return "", err
	}

	if info.ThreadID != "" {
		if info.LastMessageTime == nil {
			// Empty thread, reuse it.
			return info.ThreadID, nil
		}
		if time.Since(*info.LastMessageTime) < c.retention {
			return info.ThreadID, nil
		}
		c.logger.Printf("Last thread for %s is past retention, starting a new one", phone)
	}

	return c.backend.CreateThread(ctx, phone, threadTitle(body))
}

// threadTitle names a new thread after the opening words of the message that
// started it.
func threadTitle(body string) string {
	words := strings.Fields(body)
	if len(words) > 6 {
		words = words[:6]
	}
	if len(words) == 0 {
		return fmt.Sprintf("Chat on %s", time.Now().UTC().Format("2006-01-02"))
	}
	return strings.Join(words, " ")
}

func (c *Conversation) handleLocation(ctx context.Context, phone string, lat, lon float64) error {
	if err := c.backend.UpdateLocation(ctx, phone, lat, lon); err != nil {
		return err
	}
	return c.reply(ctx, phone, replyLocation)
}

func (c *Conversation) reply(ctx context.Context, phone, body string) error {
	return c.sender.SendMessage(ctx, phone, body)
}

// ReplyError sends the generic failure apology. Used by the worker when a
// delivery exhausts its attempt budget; failure to send is only logged.
func (c *Conversation) ReplyError(ctx context.Context, phone string) {
	if err := c.sender.SendMessage(ctx, phone, replyError); err != nil {
		c.logger.Printf("Failed to send error reply to %s: %v", phone, err)
	}
}
