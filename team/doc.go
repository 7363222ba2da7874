// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package team composes an agent roster from the capabilities a project
// requires. Capabilities are grouped into roles by a fixed rule table and
// each role becomes one workflow.Agent with a sequential id (agent-01,
// agent-02, ...).
package team
