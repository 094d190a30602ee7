package node

import (
	"encoding/json"
	"fmt"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

func (s *Service) keyURI(instance, key string) string {
	return fmt.Sprintf("/node/%s/%s/key/%s", s.uuid, instance, key)
}

// PutKV stores a value under a key in a keyvalue instance, replacing any
// previous value.
func (s *Service) PutKV(instance, key string, value []byte) error {
	uri := s.keyURI(instance, key)
	status, body, err := s.conn.Do(uri, connection.POST, value)
	if err != nil {
		return err
	}
	return connection.StatusError(status, uri, body)
}

// GetKV retrieves the value stored under a key.  A missing key returns an
// error wrapping dvid.ErrNotFound.
func (s *Service) GetKV(instance, key string) ([]byte, error) {
	uri := s.keyURI(instance, key)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return nil, fmt.Errorf("key %q in %q: %w", key, instance, dvid.ErrNotFound)
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	return body, nil
}

// DeleteKV removes a key and its value.
func (s *Service) DeleteKV(instance, key string) error {
	uri := s.keyURI(instance, key)
	status, body, err := s.conn.Do(uri, connection.DELETE, nil)
	if err != nil {
		return err
	}
	return connection.StatusError(status, uri, body)
}

// PutKVJSON marshals a value to JSON and stores it under a key.
func (s *Service) PutKVJSON(instance, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.PutKV(instance, key, payload)
}

// GetKVJSON retrieves a value and unmarshals it from JSON.
func (s *Service) GetKVJSON(instance, key string, value interface{}) error {
	body, err := s.GetKV(instance, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, value)
}

// Keys lists every key in a keyvalue instance.
func (s *Service) Keys(instance string) ([]string, error) {
	uri := fmt.Sprintf("/node/%s/%s/keys", s.uuid, instance)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("bad key list payload from %s: %v", uri, err)
	}
	return keys, nil
}
