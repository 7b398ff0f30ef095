package clickup

import (
	"context"
	"fmt"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/directory"
)

// SpaceSource feeds one ClickUp space into the directory sync.
type SpaceSource struct {
	client  *Client
	spaceID string
}

var _ directory.ListSource = (*SpaceSource)(nil)

func NewSpaceSource(client *Client, spaceID string) (*SpaceSource, error) {
	if client == nil {
		return nil, fmt.Errorf("clickup client is required")
	}
	spaceID = strings.TrimSpace(spaceID)
	if spaceID == "" {
		return nil, fmt.Errorf("clickup space id is required")
	}
	return &SpaceSource{client: client, spaceID: spaceID}, nil
}

func (s *SpaceSource) ListFolders(ctx context.Context) ([]directory.RemoteFolder, error) {
	folders, err := s.client.ListFolders(ctx, s.spaceID)
	if err != nil {
		return nil, err
	}
	out := make([]directory.RemoteFolder, 0, len(folders))
	for _, f := range folders {
		out = append(out, directory.RemoteFolder{ID: f.ID, Name: f.Name})
	}
	return out, nil
}

func (s *SpaceSource) ListFolderLists(ctx context.Context, folderID string) ([]directory.RemoteList, error) {
	lists, err := s.client.ListFolderLists(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return toRemoteLists(lists), nil
}

func (s *SpaceSource) ListFolderlessLists(ctx context.Context) ([]directory.RemoteList, error) {
	lists, err := s.client.ListFolderlessLists(ctx, s.spaceID)
	if err != nil {
		return nil, err
	}
	return toRemoteLists(lists), nil
}

func toRemoteLists(lists []List) []directory.RemoteList {
	out := make([]directory.RemoteList, 0, len(lists))
	for _, l := range lists {
		if l.Archived {
			continue
		}
		out = append(out, directory.RemoteList{ID: l.ID, Name: l.Name})
	}
	return out
}
