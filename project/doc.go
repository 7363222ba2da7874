// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package project loads project directories for the crewflow CLI.

A project directory holds a project file (project.yaml, project.yml or
project-config.json), an optional workflow state file, the artifact
directory and agents/<agentId>.md prompt files. When the project file
lists no agents the team is composed from its capabilities.
*/
package project
