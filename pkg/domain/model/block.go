package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// MaxBlockDepth bounds how deep block trees are decoded and walked. Anything deeper is skipped.
const MaxBlockDepth = 50

// Block type names as used by Slack rich text
const (
	BlockTypeRichText        = "rich_text"
	BlockTypeRichTextSection = "rich_text_section"
	BlockTypeUser            = "user"
	BlockTypeUserGroup       = "usergroup"
	BlockTypeText            = "text"
)

// Block is a node of a Slack rich text tree. The set of implementations is closed.
type Block interface {
	BlockType() string
	isBlock()
}

// Container is implemented by blocks that carry child elements
type Container interface {
	Children() []Block
}

type RichTextBlock struct {
	BlockID  string
	Elements []Block
}

type RichTextSectionBlock struct {
	Elements []Block
}

type UserBlock struct {
	UserID string
}

type UserGroupBlock struct {
	UserGroupID string
}

type TextBlock struct {
	Text string
}

// UnknownBlock keeps any other block type. Its elements are still walked.
type UnknownBlock struct {
	Type     string
	Elements []Block
}

func (RichTextBlock) BlockType() string        { return BlockTypeRichText }
func (RichTextSectionBlock) BlockType() string { return BlockTypeRichTextSection }
func (UserBlock) BlockType() string            { return BlockTypeUser }
func (UserGroupBlock) BlockType() string       { return BlockTypeUserGroup }
func (TextBlock) BlockType() string            { return BlockTypeText }
func (b UnknownBlock) BlockType() string       { return b.Type }

func (RichTextBlock) isBlock()        {}
func (RichTextSectionBlock) isBlock() {}
func (UserBlock) isBlock()            {}
func (UserGroupBlock) isBlock()       {}
func (TextBlock) isBlock()            {}
func (UnknownBlock) isBlock()         {}

func (b RichTextBlock) Children() []Block        { return b.Elements }
func (b RichTextSectionBlock) Children() []Block { return b.Elements }
func (b UnknownBlock) Children() []Block         { return b.Elements }

// MentionSet holds user and user group IDs referenced by a message
type MentionSet struct {
	UserIDs      UserSet
	UserGroupIDs UserSet
}

func NewMentionSet() MentionSet {
	return MentionSet{
		UserIDs:      NewUserSet(),
		UserGroupIDs: NewUserSet(),
	}
}

// IsEmpty returns true when neither users nor groups are mentioned
func (m MentionSet) IsEmpty() bool {
	return m.UserIDs.Len() == 0 && m.UserGroupIDs.Len() == 0
}

// ExtractMentions collects user and user group IDs from a block forest.
// Unknown block types are walked through their elements when they have any, and ignored otherwise.
func ExtractMentions(blocks []Block) MentionSet {
	mentions := NewMentionSet()
	collectMentions(blocks, 0, &mentions)
	return mentions
}

func collectMentions(blocks []Block, depth int, mentions *MentionSet) {
	if depth >= MaxBlockDepth {
		return
	}

	for _, block := range blocks {
		switch b := block.(type) {
		case nil:
			continue
		case UserBlock:
			mentions.UserIDs.Add(b.UserID)
		case *UserBlock:
			mentions.UserIDs.Add(b.UserID)
		case UserGroupBlock:
			mentions.UserGroupIDs.Add(b.UserGroupID)
		case *UserGroupBlock:
			mentions.UserGroupIDs.Add(b.UserGroupID)
		case Container:
			collectMentions(b.Children(), depth+1, mentions)
		}
	}
}

// rawBlock covers the fields of every block variant we read
type rawBlock struct {
	Type        string          `json:"type"`
	BlockID     string          `json:"block_id"`
	Elements    json.RawMessage `json:"elements"`
	UserID      string          `json:"user_id"`
	UsergroupID string          `json:"usergroup_id"`
	Text        json.RawMessage `json:"text"`
}

// UnmarshalBlocks decodes a JSON array of Slack blocks. Malformed children are dropped
// rather than failing the whole message; only a non-array top level is an error.
func UnmarshalBlocks(data []byte) ([]Block, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, goerr.Wrap(err, "blocks must be a JSON array")
	}

	return decodeBlocks(raws, 0), nil
}

func decodeBlocks(raws []json.RawMessage, depth int) []Block {
	if depth >= MaxBlockDepth {
		return nil
	}

	blocks := make([]Block, 0, len(raws))
	for _, raw := range raws {
		var rb rawBlock
		if err := json.Unmarshal(raw, &rb); err != nil || rb.Type == "" {
			continue
		}

		switch rb.Type {
		case BlockTypeUser:
			blocks = append(blocks, UserBlock{UserID: rb.UserID})
		case BlockTypeUserGroup:
			blocks = append(blocks, UserGroupBlock{UserGroupID: rb.UsergroupID})
		case BlockTypeText:
			var text string
			_ = json.Unmarshal(rb.Text, &text)
			blocks = append(blocks, TextBlock{Text: text})
		case BlockTypeRichText:
			blocks = append(blocks, RichTextBlock{BlockID: rb.BlockID, Elements: decodeChildren(rb.Elements, depth)})
		case BlockTypeRichTextSection:
			blocks = append(blocks, RichTextSectionBlock{Elements: decodeChildren(rb.Elements, depth)})
		default:
			blocks = append(blocks, UnknownBlock{Type: rb.Type, Elements: decodeChildren(rb.Elements, depth)})
		}
	}
	return blocks
}

func decodeChildren(data json.RawMessage, depth int) []Block {
	if len(data) == 0 {
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		// elements that are not an array are treated as absent
		return nil
	}
	return decodeBlocks(raws, depth+1)
}
