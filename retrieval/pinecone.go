// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package retrieval

import (
	"context"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/pkg/errors"
)

// TextMetadataKey is the metadata field ingestion stores passage text under
const TextMetadataKey = "text"

// PineconeIndex queries a Pinecone serverless index
type PineconeIndex struct {
	conn *pinecone.IndexConnection
}

var _ Index = (*PineconeIndex)(nil)

// PineconeConfig locates the index. Host wins over Name; Name costs one
// DescribeIndex call at startup.
type PineconeConfig struct {
	APIKey    string
	Host      string
	Name      string
	Namespace string
}

func NewPineconeIndex(ctx context.Context, cfg PineconeConfig) (*PineconeIndex, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "pinecone client")
	}

	host := cfg.Host
	if host == "" {
		if cfg.Name == "" {
			return nil, errors.New("pinecone: index host or name required")
		}
		idx, err := pc.DescribeIndex(ctx, cfg.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "describe index %s", cfg.Name)
		}
		host = idx.Host
	}

	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, errors.Wrapf(err, "connect index %s", host)
	}
	return &PineconeIndex{conn: conn}, nil
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "pinecone query")
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var text string
		if md := m.Vector.Metadata; md != nil {
			text = md.GetFields()[TextMetadataKey].GetStringValue()
		}
		matches = append(matches, Match{ID: m.Vector.Id, Score: m.Score, Text: text})
	}
	return matches, nil
}

func (p *PineconeIndex) Close() error {
	return p.conn.Close()
}
