package platformclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/iurnickita/importcredit/internal/model"
)

var ErrNotFound = errors.New("platform record not found")

// PlatformClient reads credit application and settings snapshots from the
// platform that owns them.
type PlatformClient interface {
	GetCreditApplication(ctx context.Context, id string) (model.CreditApplication, error)
	GetFinancialSettings(ctx context.Context, userID string) (*model.FinancialSettings, error)
}

type platformClient struct {
	client *resty.Client
}

func NewPlatformClient(serviceAddr string, timeout time.Duration) PlatformClient {
	client := resty.New().SetBaseURL(serviceAddr)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return platformClient{client: client}
}

func (c platformClient) GetCreditApplication(ctx context.Context, id string) (model.CreditApplication, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/api/credit-applications/{id}")
	if err != nil {
		return model.CreditApplication{}, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var snapshot model.ApplicationSnapshot
		if err = json.Unmarshal(resp.Body(), &snapshot); err != nil {
			return model.CreditApplication{}, err
		}
		return snapshot.ToModel()
	case http.StatusNotFound:
		return model.CreditApplication{}, fmt.Errorf("%w: credit application %s", ErrNotFound, id)
	default:
		return model.CreditApplication{}, fmt.Errorf("platform request status: %d", resp.StatusCode())
	}
}

// GetFinancialSettings returns nil when the user has no saved settings.
func (c platformClient) GetFinancialSettings(ctx context.Context, userID string) (*model.FinancialSettings, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		Get("/api/users/{id}/financial-settings")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var snapshot model.SettingsSnapshot
		if err = json.Unmarshal(resp.Body(), &snapshot); err != nil {
			return nil, err
		}
		settings, err := snapshot.ToModel(userID)
		if err != nil {
			return nil, err
		}
		return &settings, nil
	case http.StatusNotFound, http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("platform request status: %d", resp.StatusCode())
	}
}
