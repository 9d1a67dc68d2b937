// Package core maps, validates and merges issuer and security spreadsheets
// into the record store.
//
// The package holds all domain rules and no transport code. The HTTP server
// and the importer CLI both drive it through [Service].
//
// # Flow
//
// An upload moves through three steps:
//
//  1. [Service.BeginUpload] loads the file and proposes a mapping of
//     canonical fields to columns with the same name, plus any saved
//     templates that fit the headers. The [Upload] is in [StateMapping].
//  2. [Upload.ApplyMapping] accepts overrides and custom-field labels. Once
//     every required field has a column the upload moves to
//     [StateProcessing]; otherwise a MissingRequiredField error names the
//     gaps.
//  3. [Service.Process] validates each row, merges the good ones and saves
//     the collection in one atomic write.
//
// Callers that already hold rows and a mapping can skip the upload value and
// call [Service.ProcessIssuerRows] or [Service.ProcessSecurityRows].
//
// # Records
//
// Issuers are keyed by name and owned by the custodian that created them.
// Later rows replace contacts and custom fields but never the owner.
// Securities are keyed by security_id and replaced whole; each keeps a
// snapshot of its issuer's contacts.
//
// # Errors
//
// Row failures are collected as [RowError] values in the result. File-level
// failures abort before anything is written and come back as [*FileError].
// [MapError] turns any error into a coded [UserMessage].
package core
