package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/refs"
)

// CreateTag points refs/tags/<name> at target. Without force an existing
// tag is left alone and an error returned.
func (r *Repo) CreateTag(ctx context.Context, name string, target object.Hash, force bool) error {
	if err := r.setTag(ctx, name, target, force, "tag: tagging "+target.Short()); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// CreateAnnotatedTag stores a tag object for target and points
// refs/tags/<name> at it. A zero tagger uses the configured user.
func (r *Repo) CreateAnnotatedTag(ctx context.Context, name string, target object.Hash, tagger object.Signature, message string, force bool) (object.Hash, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return object.ZeroHash, fmt.Errorf("create annotated tag: message is required")
	}
	if tagger.Name == "" && tagger.Email == "" {
		tagger = r.who()
	}
	targetType, _, err := r.Objects.Read(target)
	if err != nil {
		return object.ZeroHash, fmt.Errorf("create annotated tag: read target %s: %w", target, err)
	}

	tagHash, err := r.Objects.WriteTag(&object.TagObj{
		Target:     target,
		TargetType: targetType,
		Name:       name,
		Tagger:     &tagger,
		Message:    message + "\n",
	})
	if err != nil {
		return object.ZeroHash, fmt.Errorf("create annotated tag: write tag object: %w", err)
	}
	if err := r.setTag(ctx, name, tagHash, force, "tag: tagging "+target.Short()); err != nil {
		return object.ZeroHash, fmt.Errorf("create annotated tag: %w", err)
	}
	return tagHash, nil
}

func (r *Repo) setTag(ctx context.Context, name string, target object.Hash, force bool, msg string) error {
	refName := refs.TagsPrefix + strings.TrimSpace(name)
	if err := refs.ValidateName(refName); err != nil {
		return err
	}
	u := refs.RefUpdate{Name: refName, New: target, Force: true, Message: msg, Who: r.who()}
	if !force {
		u.Expected = refs.ExpectOld(object.ZeroHash)
	}
	_, err := r.Refs.Update(ctx, u)
	if errors.Is(err, refs.ErrCASMismatch) {
		return fmt.Errorf("tag %q already exists", name)
	}
	return err
}

// DeleteTag removes refs/tags/<name>. Tag objects are left in the store.
func (r *Repo) DeleteTag(ctx context.Context, name string) error {
	refName := refs.TagsPrefix + name
	res, err := r.Refs.Delete(ctx, refs.RefDelete{Name: refName, Message: "tag: deleted", Who: r.who()})
	if err != nil {
		return fmt.Errorf("delete tag %q: %w", name, err)
	}
	if res == refs.ResultNoChange {
		return fmt.Errorf("delete tag %q: %w", name, refs.ErrNotFound)
	}
	return nil
}

// Tag is one entry of ListTags.
type Tag struct {
	Name string
	// Hash is what the ref holds: a tag object for annotated tags.
	Hash object.Hash
	// Target is the object the tag finally names.
	Target object.Hash
}

// ListTags returns every tag sorted by name, peeling annotated tags.
func (r *Repo) ListTags() ([]Tag, error) {
	list, err := r.Refs.List(refs.TagsPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags := make([]Tag, 0, len(list))
	for _, ref := range list {
		if ref.IsSymbolic() {
			continue
		}
		t := Tag{Name: strings.TrimPrefix(ref.Name, refs.TagsPrefix), Hash: ref.Hash, Target: ref.Peeled}
		if t.Target.IsZero() {
			t.Target, err = r.peelTag(ref.Hash)
			if err != nil {
				return nil, fmt.Errorf("list tags: %s: %w", t.Name, err)
			}
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// peelTag follows tag objects until it reaches something else.
func (r *Repo) peelTag(h object.Hash) (object.Hash, error) {
	for range refs.MaxSymrefDepth * 2 {
		typ, _, err := r.Objects.Read(h)
		if err != nil {
			return object.ZeroHash, err
		}
		if typ != object.TypeTag {
			return h, nil
		}
		tag, err := r.Objects.ReadTag(h)
		if err != nil {
			return object.ZeroHash, err
		}
		h = tag.Target
	}
	return object.ZeroHash, fmt.Errorf("peel %s: tag chain too long", h.Short())
}
