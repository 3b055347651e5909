package http

// VerifySlackSignature is exported for testing
var VerifySlackSignature = verifySlackSignature

// EventAttrs is exported for testing
var EventAttrs = eventAttrs
