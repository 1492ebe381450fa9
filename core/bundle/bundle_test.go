// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle_test

import (
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/gatebundle/gatebundle/core/bundle"
	"github.com/gatebundle/gatebundle/core/entity"
)

type bundleSuite struct{}

var _ = gc.Suite(&bundleSuite{})

func (*bundleSuite) TestActionValidate(c *gc.C) {
	for _, a := range []bundle.Action{
		bundle.NewOrExisting, bundle.NewOrUpdate, bundle.AlwaysCreateNew,
		bundle.Delete, bundle.Ignore,
	} {
		c.Check(a.Validate(), jc.ErrorIsNil)
	}
	c.Check(bundle.Action("Replace").Validate(), jc.ErrorIs, errors.NotValid)
}

func (*bundleSuite) TestPropertiesValidate(c *gc.C) {
	c.Check(bundle.Properties{}.Validate(), jc.ErrorIsNil)
	c.Check(bundle.Properties{MapBy: bundle.MapByName, MapTo: "other"}.Validate(), jc.ErrorIsNil)
	c.Check(bundle.Properties{MapBy: "routingUri"}.Validate(), jc.ErrorIs, errors.NotValid)
	c.Check(bundle.Properties{MapTo: "other"}.Validate(), jc.ErrorIs, errors.NotValid)
}

func (*bundleSuite) TestValidateDuplicateSource(c *gc.C) {
	b := &bundle.Bundle{
		Mappings: []*bundle.Mapping{
			{Source: entity.Ref{Type: entity.Policy, ID: "1"}, Action: bundle.NewOrExisting},
			{Source: entity.Ref{Type: entity.Policy, ID: "1"}, Action: bundle.NewOrExisting},
		},
	}
	c.Assert(b.Validate(), jc.ErrorIs, errors.NotValid)
}

func (*bundleSuite) TestValidateReferenceWithoutMapping(c *gc.C) {
	b := &bundle.Bundle{
		References: []entity.Object{
			{Ref: entity.Ref{Type: entity.Policy, ID: "1"}},
		},
	}
	c.Assert(b.Validate(), jc.ErrorIs, errors.NotValid)
}

func (*bundleSuite) TestSetDefaultAction(c *gc.C) {
	b := &bundle.Bundle{
		Mappings: []*bundle.Mapping{
			{Source: entity.Ref{Type: entity.Folder, ID: "f"}, Action: bundle.NewOrExisting},
			{Source: entity.Ref{Type: entity.Service, ID: "s"}, Action: bundle.NewOrExisting},
		},
	}
	err := b.SetDefaultAction(bundle.NewOrUpdate)
	c.Assert(err, jc.ErrorIsNil)
	for _, m := range b.Mappings {
		c.Check(m.Action, gc.Equals, bundle.NewOrUpdate)
	}
	c.Assert(b.SetDefaultAction("bogus"), jc.ErrorIs, errors.NotValid)
}

func (*bundleSuite) TestMappingReset(c *gc.C) {
	m := &bundle.Mapping{
		Source:    entity.Ref{Type: entity.Policy, ID: "1"},
		ErrorType: bundle.TargetNotFound,
		Message:   "fail on new specified",
	}
	c.Check(m.Failed(), jc.IsTrue)
	m.Reset()
	c.Check(m.Failed(), jc.IsFalse)
	c.Check(m.ActionTaken, gc.Equals, bundle.ActionTaken(""))
}

type serializeSuite struct{}

var _ = gc.Suite(&serializeSuite{})

func minimalBundle() *bundle.Bundle {
	return &bundle.Bundle{
		ExportedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
		References: []entity.Object{{
			Ref: entity.Ref{Type: entity.Folder, ID: "f1", Name: "FolderA"},
			Content: map[string]interface{}{
				"folderId": entity.RootFolderID,
			},
		}, {
			Ref:  entity.Ref{Type: entity.Policy, ID: "p1", Guid: "guid-1", Name: "PolicyA"},
			Content: map[string]interface{}{
				"folderId": "f1",
				"uses": []interface{}{
					map[string]interface{}{"type": "JDBC_CONNECTION", "id": "j1"},
				},
			},
		}},
		Mappings: []*bundle.Mapping{{
			Source:   entity.RootFolderRef(),
			TargetID: entity.RootFolderID,
			Action:   bundle.NewOrExisting,
		}, {
			Source:   entity.Ref{Type: entity.Folder, ID: "f1", Name: "FolderA"},
			TargetID: "f1",
			Action:   bundle.NewOrExisting,
		}, {
			Source:     entity.Ref{Type: entity.Policy, ID: "p1", Guid: "guid-1", Name: "PolicyA"},
			TargetID:   "p1",
			Action:     bundle.NewOrExisting,
			Properties: bundle.Properties{FailOnNew: true},
		}},
	}
}

func (*serializeSuite) TestRoundTrip(c *gc.C) {
	in := minimalBundle()
	data, err := bundle.Serialize(in)
	c.Assert(err, jc.ErrorIsNil)

	out, err := bundle.Deserialize(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out.ExportedAt, gc.Equals, in.ExportedAt)
	c.Assert(out.Mappings, gc.HasLen, 3)
	c.Check(out.Mappings[0].Source, jc.DeepEquals, in.Mappings[0].Source)
	c.Check(out.Mappings[2].Properties, jc.DeepEquals, bundle.Properties{FailOnNew: true})
	c.Assert(out.References, gc.HasLen, 2)
	c.Check(out.References[0].Ref, jc.DeepEquals, in.References[0].Ref)
	c.Check(out.References[1].Ref.Guid, gc.Equals, "guid-1")
}

func (*serializeSuite) TestOrderPreserved(c *gc.C) {
	in := minimalBundle()
	data, err := bundle.Serialize(in)
	c.Assert(err, jc.ErrorIsNil)
	out, err := bundle.Deserialize(data)
	c.Assert(err, jc.ErrorIsNil)
	for i, m := range in.Mappings {
		c.Check(out.Mappings[i].Source.Key(), gc.Equals, m.Source.Key())
	}
}

func (*serializeSuite) TestUnknownVersion(c *gc.C) {
	_, err := bundle.Deserialize([]byte("version: 99\nmappings: []\n"))
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (*serializeSuite) TestMissingVersion(c *gc.C) {
	_, err := bundle.Deserialize([]byte("mappings: []\n"))
	c.Assert(err, gc.NotNil)
}

func (*serializeSuite) TestBadMapping(c *gc.C) {
	data := []byte(`
version: 1
mappings:
  - type: POLICY
    action: NewOrExisting
`)
	// src-id missing entirely fails the field check.
	_, err := bundle.Deserialize(data)
	c.Assert(err, gc.ErrorMatches, ".*src-id.*")
}

func (*serializeSuite) TestEncryptedSecretsFlag(c *gc.C) {
	in := minimalBundle()
	in.EncryptedSecrets = true
	data, err := bundle.Serialize(in)
	c.Assert(err, jc.ErrorIsNil)
	out, err := bundle.Deserialize(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(out.EncryptedSecrets, jc.IsTrue)
}
