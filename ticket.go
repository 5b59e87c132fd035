package fchat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/NeboLoop/fchat-go-sdk/wire"
)

// DefaultTicketURL is the F-List endpoint that exchanges account credentials
// for a chat ticket.
const DefaultTicketURL = "https://www.f-list.net/json/getApiTicket.php"

// GetTicket logs in with account and password and returns the API ticket
// used by Identify. A nil client uses http.DefaultClient.
func GetTicket(ctx context.Context, client *http.Client, ticketURL, account, password string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{}
	form.Set("account", account)
	form.Set("password", password)
	form.Set("no_characters", "true")
	form.Set("no_friends", "true")
	form.Set("no_bookmarks", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ticketURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTicket, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTicket, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrTicket, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP status code %d", ErrTicket, resp.StatusCode)
	}

	var result wire.TicketResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrTicket, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: login error: %s", ErrTicket, result.Error)
	}
	if result.Ticket == "" {
		return "", fmt.Errorf("%w: empty ticket", ErrTicket)
	}
	return result.Ticket, nil
}
