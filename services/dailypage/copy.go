package dailypage

import (
	"context"
	"maps"

	"notion-helper/lib/batch"
	"notion-helper/lib/notion"
)

// block types that cannot be recreated through the api
var uncopyable = map[string]bool{
	"child_database": true,
	"child_page":     true,
	"unsupported":    true,
	"link_preview":   true,
}

func (s Service) listChildren(ctx context.Context, blockID string) ([]notion.Block, error) {
	var out []notion.Block
	err := batch.Paginate(ctx,
		func(ctx context.Context, cursor string) (batch.Page[notion.Block], error) {
			list, err := s.api.GetBlockChildren(ctx, blockID, maxChildrenPerRequest, cursor)
			if err != nil {
				return batch.Page[notion.Block]{}, err
			}
			return batch.Page[notion.Block]{
				Items:      list.Results,
				HasMore:    list.HasMore,
				NextCursor: list.NextCursor,
			}, nil
		},
		func(ctx context.Context, items []notion.Block) error {
			out = append(out, items...)
			return nil
		},
	)
	return out, err
}

// copyBlocks reads the children of blockID and returns them in a form that
// can be sent back to the api, nested children included.
func (s Service) copyBlocks(ctx context.Context, blockID string) ([]notion.Block, error) {
	children, err := s.listChildren(ctx, blockID)
	if err != nil {
		return nil, err
	}

	out := make([]notion.Block, 0, len(children))
	for _, child := range children {
		blockType := child.Type()
		if blockType == "" || uncopyable[blockType] {
			continue
		}
		content, _ := child[blockType].(map[string]any)
		content = maps.Clone(content)
		if content == nil {
			content = map[string]any{}
		}

		if child.HasChildren() {
			nested, err := s.copyBlocks(ctx, child.ID())
			if err != nil {
				return nil, err
			}
			if len(nested) > 0 {
				content["children"] = nested
			}
		}

		out = append(out, notion.Block{
			"object":  "block",
			"type":    blockType,
			blockType: content,
		})
	}
	return out, nil
}
