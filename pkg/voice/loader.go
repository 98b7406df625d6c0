package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const DefaultSDKURL = "http://gamilab.ch/sdk.json"

// HTTPLoader fetches the SDK descriptor and returns a websocket client bound to it.
type HTTPLoader struct {
	URL    string
	Client *http.Client
}

func NewHTTPLoader() *HTTPLoader {
	sdkURL := os.Getenv("GAMI_SDK_URL")
	if sdkURL == "" {
		sdkURL = DefaultSDKURL
	}

	return &HTTPLoader{
		URL:    sdkURL,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *HTTPLoader) Load(ctx context.Context) (Client, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load SDK: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to load SDK: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to load SDK: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to load SDK: status %d", resp.StatusCode)
	}

	var desc Descriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("failed to load SDK: %w", err)
	}

	return newWSClient(desc), nil
}
