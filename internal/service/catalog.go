package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ClientDefinition is the on-disk JSON form of a client in the catalog
// directory. pkce_required defaults to true when omitted.
type ClientDefinition struct {
	Client
}

func (d *ClientDefinition) UnmarshalJSON(
	data []byte,
) error {
	type Alias Client
	tmp := &struct {
		PKCERequired *bool `json:"pkce_required"`
		*Alias
	}{
		Alias: (*Alias)(&d.Client),
	}
	if err := json.Unmarshal(data, tmp); err != nil {
		return err
	}
	d.PKCERequired = tmp.PKCERequired == nil || *tmp.PKCERequired
	return nil
}

// LoadClientCatalog reads every *.json file in dir as a ClientDefinition.
// Files that fail to parse or validate are reported together.
func LoadClientCatalog(
	dir string,
) (
	[]Client,
	error,
) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients directory '%s': %w", dir, err)
	}

	var clients []Client
	var failures []string
	for _, file := range files {
		if !file.Type().IsRegular() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		client, err := loadClientDefinition(filepath.Join(dir, file.Name()))
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		clients = append(clients, *client)
	}

	if len(failures) > 0 {
		return clients, fmt.Errorf("%w: %s", ErrInvalidClient, strings.Join(failures, "; "))
	}
	return clients, nil
}

func loadClientDefinition(
	path string,
) (
	*Client,
	error,
) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load client definition: %w", err)
	}

	def := &ClientDefinition{}
	if err := json.Unmarshal(file, def); err != nil {
		return nil, fmt.Errorf("failed to parse json of '%s': %w", path, err)
	}
	if err := ValidateClient(&def.Client); err != nil {
		return nil, fmt.Errorf("'%s': %w", path, err)
	}
	return &def.Client, nil
}

// SyncClients registers every client in clients, returning the number
// stored.
func (s *Service) SyncClients(
	ctx context.Context,
	clients []Client,
) (
	int,
	error,
) {
	for i := range clients {
		if err := s.RegisterClient(ctx, &clients[i]); err != nil {
			return i, err
		}
	}
	return len(clients), nil
}
