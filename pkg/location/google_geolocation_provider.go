package location

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

const geolocationTimeout = 10 * time.Second

// GoogleGeolocationProvider uses the Google Maps Geolocation API to locate
// devices without a GPS receiver.
type GoogleGeolocationProvider struct {
	client     *maps.Client
	modemIndex int
	logger     zerolog.Logger
}

// NewGoogleGeolocationProvider creates a provider using apiKey. modemIndex
// selects the ModemManager modem queried for the serving cell.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
		logger:     logger,
	}, nil
}

// GetLocation geolocates the device from nearby Wi-Fi access points, the
// serving cell and the public IP address.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, geolocationTimeout)
	defer cancel()

	req := &maps.GeolocationRequest{ConsiderIP: true}

	// Radio data only improves accuracy, the API still answers from the IP.
	wifiAPs, err := scanWiFiAccessPoints(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("Wi-Fi scan unavailable")
	}
	req.WiFiAccessPoints = wifiAPs

	cellTowers, err := scanCellTowers(ctx, g.modemIndex)
	if err != nil {
		g.logger.Debug().Err(err).Int("modem", g.modemIndex).Msg("Cell tower scan unavailable")
	}
	req.CellTowers = cellTowers

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: time.Now(),
	}, nil
}
