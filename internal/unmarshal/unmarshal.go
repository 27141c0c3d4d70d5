// Package unmarshal converts foreign result objects into Go-owned values.
//
// Every result carries an error envelope that is read first. Payload
// accessors are dispatched only when the envelope reports success.
package unmarshal

import (
	stderrors "errors"

	"github.com/docbridge/docbridge/internal/foreign"
	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/packed"
	"github.com/docbridge/docbridge/pkg/types"
)

const component = "unmarshal"

func wrap(operation string, err error) error {
	return foreign.Wrap(component, operation, err)
}

func protocolError(operation, format string, args ...interface{}) *errors.BridgeError {
	return errors.Newf(errors.ErrCodeProtocol, format, args...).
		WithComponent(component).
		WithOperation(operation)
}

// FlaggedEnvelope reads the envelope of a string or reader result:
// isError(), then getStatus() and getErrorMessage() when it is set.
func FlaggedEnvelope(env foreign.Env, obj foreign.Ref, operation string) (types.Envelope, error) {
	failed, err := foreign.CallBool(env, obj, "isError")
	if err != nil {
		return types.Envelope{}, wrap(operation, err)
	}
	if !failed {
		return types.Envelope{}, nil
	}

	status, err := foreign.CallByte(env, obj, "getStatus")
	if err != nil {
		return types.Envelope{}, wrap(operation, err)
	}
	e, err := readMessage(env, obj, operation, status)
	if err != nil {
		return types.Envelope{}, err
	}
	if status == errors.StatusOK {
		// isError with status 0 is still a failure of unknown kind.
		msg := e.Message
		if !e.HasMessage {
			msg = errors.SyntheticMessage(operation, status)
		}
		return e, errors.NewError(errors.ErrCodeUnknown, msg).
			WithComponent(component).
			WithOperation(operation)
	}
	return e, nil
}

// CodedEnvelope reads the envelope of an embedded or optimized result:
// getErrorCode(), then getErrorMessage() when the code is nonzero.
func CodedEnvelope(env foreign.Env, obj foreign.Ref, operation string) (types.Envelope, error) {
	code, err := foreign.CallByte(env, obj, "getErrorCode")
	if err != nil {
		return types.Envelope{}, wrap(operation, err)
	}
	if code == errors.StatusOK {
		return types.Envelope{}, nil
	}
	return readMessage(env, obj, operation, code)
}

func readMessage(env foreign.Env, obj foreign.Ref, operation string, code uint8) (types.Envelope, error) {
	msg, present, err := foreign.CallString(env, obj, "getErrorMessage")
	if err != nil {
		return types.Envelope{}, wrap(operation, err)
	}
	return types.Envelope{Code: code, Message: msg, HasMessage: present}, nil
}

// Check converts a failed envelope into its typed error.
func Check(e types.Envelope, operation string) error {
	if e.OK() {
		return nil
	}
	return errors.FromStatus(e.Code, e.Message, e.HasMessage, operation).WithComponent(component)
}

// String unmarshals a string result into its content and metadata.
func String(env foreign.Env, obj foreign.Ref, operation string) (string, types.Metadata, error) {
	e, err := FlaggedEnvelope(env, obj, operation)
	if err != nil {
		return "", nil, err
	}
	if err := Check(e, operation); err != nil {
		return "", nil, err
	}

	content, present, err := foreign.CallString(env, obj, "getContent")
	if err != nil {
		return "", nil, wrap(operation, err)
	}
	if !present {
		return "", nil, protocolError(operation, "%s returned null content", operation)
	}

	md, err := metadataOf(env, obj, operation, false)
	if err != nil {
		return "", nil, err
	}
	return content, md, nil
}

// Reader unmarshals a reader result into the foreign reader and metadata.
// The caller owns the returned reader and must close it.
func Reader(env foreign.Env, obj foreign.Ref, operation string) (foreign.Ref, types.Metadata, error) {
	e, err := FlaggedEnvelope(env, obj, operation)
	if err != nil {
		return nil, nil, err
	}
	if err := Check(e, operation); err != nil {
		return nil, nil, err
	}

	reader, err := foreign.CallObject(env, obj, "getReader")
	if err != nil {
		return nil, nil, wrap(operation, err)
	}
	if reader == nil {
		return nil, nil, protocolError(operation, "%s returned a null reader", operation)
	}

	md, err := metadataOf(env, obj, operation, false)
	if err != nil {
		return nil, nil, err
	}
	return reader, md, nil
}

// Embedded unmarshals a list result element by element. The parent
// metadata is read when the result exposes getMetadata and is empty
// otherwise.
func Embedded(env foreign.Env, obj foreign.Ref, operation string) (*types.EmbeddedExtractResult, error) {
	e, err := CodedEnvelope(env, obj, operation)
	if err != nil {
		return nil, err
	}
	if err := Check(e, operation); err != nil {
		return nil, err
	}

	list, err := foreign.CallObject(env, obj, "getEmbeddedDocuments")
	if err != nil {
		return nil, wrap(operation, err)
	}
	if list == nil {
		return nil, protocolError(operation, "%s returned a null document list", operation)
	}

	size, err := foreign.CallInt(env, list, "size")
	if err != nil {
		return nil, wrap(operation, err)
	}
	if size < 0 {
		return nil, protocolError(operation, "%s returned a list of size %d", operation, size)
	}

	docs := make([]types.EmbeddedDocument, 0, size)
	for i := int32(0); i < size; i++ {
		item, err := foreign.CallObject(env, list, "get", i)
		if err != nil {
			return nil, wrap(operation, err)
		}
		if item == nil {
			return nil, protocolError(operation, "%s returned a null document", operation).WithDetail("index", i)
		}
		doc, err := Document(env, item, operation)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	md, err := metadataOf(env, obj, operation, true)
	if err != nil {
		return nil, err
	}
	return &types.EmbeddedExtractResult{Documents: docs, Metadata: md}, nil
}

// Document reads one foreign document. An empty relationship id is kept as
// present, unlike the packed path.
func Document(env foreign.Env, obj foreign.Ref, operation string) (types.EmbeddedDocument, error) {
	var doc types.EmbeddedDocument

	name, _, err := foreign.CallString(env, obj, "getResourceName")
	if err != nil {
		return doc, wrap(operation, err)
	}
	contentType, _, err := foreign.CallString(env, obj, "getContentType")
	if err != nil {
		return doc, wrap(operation, err)
	}
	content, err := foreign.CallBytes(env, obj, "getContent")
	if err != nil {
		return doc, wrap(operation, err)
	}
	relID, present, err := foreign.CallString(env, obj, "getEmbeddedRelationshipId")
	if err != nil {
		return doc, wrap(operation, err)
	}

	doc.ResourceName = name
	doc.ContentType = contentType
	doc.Content = append([]byte(nil), content...)
	if present {
		doc.EmbeddedRelationshipID = types.StringPtr(relID)
	}
	return doc, nil
}

// Optimized unmarshals a packed result. Packed results carry no parent
// metadata.
func Optimized(env foreign.Env, obj foreign.Ref, operation string) (*types.EmbeddedExtractResult, error) {
	e, err := CodedEnvelope(env, obj, operation)
	if err != nil {
		return nil, err
	}
	if err := Check(e, operation); err != nil {
		return nil, err
	}

	count, err := foreign.CallInt(env, obj, "getDocumentCount")
	if err != nil {
		return nil, wrap(operation, err)
	}
	data, err := foreign.CallBytes(env, obj, "getPackedData")
	if err != nil {
		return nil, wrap(operation, err)
	}
	if data == nil {
		return nil, protocolError(operation, "%s returned no packed data", operation)
	}

	docs, err := packed.Decode(data, int(count))
	if err != nil {
		var bridgeErr *errors.BridgeError
		if stderrors.As(err, &bridgeErr) {
			bridgeErr.WithOperation(operation)
		}
		return nil, err
	}
	return &types.EmbeddedExtractResult{Documents: docs, Metadata: types.Metadata{}}, nil
}

// Metadata reads a foreign metadata object with names() and
// getValues(name). A null object yields empty metadata.
func Metadata(env foreign.Env, obj foreign.Ref, operation string) (types.Metadata, error) {
	md := types.Metadata{}
	if obj == nil {
		return md, nil
	}

	names, err := foreign.CallStrings(env, obj, "names")
	if err != nil {
		return nil, wrap(operation, err)
	}
	for _, name := range names {
		values, err := foreign.CallStrings(env, obj, "getValues", name)
		if err != nil {
			return nil, wrap(operation, err)
		}
		md[name] = append(md[name], values...)
	}
	return md, nil
}

func metadataOf(env foreign.Env, obj foreign.Ref, operation string, optional bool) (types.Metadata, error) {
	ref, err := foreign.CallObject(env, obj, "getMetadata")
	if err != nil {
		if optional && stderrors.Is(err, foreign.ErrNoSuchMethod) {
			return types.Metadata{}, nil
		}
		return nil, wrap(operation, err)
	}
	return Metadata(env, ref, operation)
}
