// Package core provides the business logic for reconciling uploaded CSV
// datasets against the authoritative records held by the application.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, the CLI, or tests without
// modification.
//
// # Architecture
//
// The package is organized around four pieces:
//
//   - Text Codec: [Decode] turns delimited text into typed [Record] values,
//     [Encode] and [WriteCSV] turn records back into text with derived
//     latitude/longitude columns.
//   - Record Store: the [RecordStore] interface is the only way the engine
//     reads or writes authoritative data.
//   - Reconciliation: [Reconcile] matches incoming records to authoritative
//     ones by identifier and produces an [UpdateBatch] restricted to the
//     dataset's editable fields.
//   - Applier: [Applier] submits the batch, interprets per-item outcomes and
//     fires the refresh signal.
//
// # Dataset Registry
//
// Datasets are registered at init time using [Register]. Each
// [DatasetDefinition] names the backing table, the identifier field, the
// editable fields and the date-valued fields:
//
//	core.Register(DatasetDefinition{
//	    Key:             "change_requests",
//	    Table:           "change_requests",
//	    IdentifierField: "objectid",
//	    EditableFields:  EditableFieldSet{"room_name", "status"},
//	    FieldSpecs: []FieldSpec{
//	        {Name: "objectid", Type: FieldNumeric},
//	        {Name: "room_name", Type: FieldText},
//	        {Name: "status", Type: FieldText},
//	    },
//	})
//
// # Reconciliation Runs
//
// [Service.Reconcile] executes one run as a strict sequence of phases:
//
//  1. fetching: the upload is decoded while the authoritative snapshot is
//     fetched (the two steps run concurrently)
//  2. diffing: the snapshot is indexed by identifier and diffed
//  3. submitting: the batch is sent to the store in a single request
//  4. done or failed
//
// Structural failures ([MalformedInputError], [FetchError],
// [SubmissionError]) abort the run. Item failures ([ItemApplyError]) are
// collected in the report and never abort sibling items.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - REC001-REC007: Reconciliation errors (malformed input, fetch, submit)
//   - DB001-DB007: Database errors (constraints, connections)
//   - FILE001-FILE006: File and request errors (size, encoding, format)
//   - RUN001-RUN003: Run errors (busy, cancelled, timeout)
package core
