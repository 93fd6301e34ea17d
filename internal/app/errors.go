package app

import "fmt"

// Custom application-level errors
var ErrUnknownRoundKind = fmt.Errorf("unknown round kind")
var ErrIncompleteQuestionnaire = fmt.Errorf("questionnaire response is missing required answers")
var ErrMissingPatientReference = fmt.Errorf("patient reference is required")
var ErrInvalidDateRange = fmt.Errorf("start date must not be after end date")
