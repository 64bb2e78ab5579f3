package graph

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// SchemaSDL is the carechat GraphQL schema.
const SchemaSDL = `
scalar Time

enum Role {
  CAREGIVER
  ASSISTANT
}

type Subject {
  id: ID!
  name: String!
  summary: String
}

type Message {
  id: ID!
  subjectId: ID!
  role: Role!
  body: String!
  createdAt: Time!
}

type OperationStats {
  count: Int!
  failures: Int!
  totalTimeMs: Int!
  avgTimeMs: Float!
  minTimeMs: Int!
  maxTimeMs: Int!
  totalInputTokens: Int
  totalOutputTokens: Int
}

type ServerStats {
  uptimeSeconds: Float!
  graphql: OperationStats
  dbQuery: OperationStats
  llmGenerate: OperationStats
  responderJob: OperationStats
}

input SubjectInput {
  id: ID!
  name: String!
  summary: String
}

type Query {
  subject(id: ID!): Subject
  subjects: [Subject!]!
  messages(subjectId: ID!): [Message!]!
  serverStats: ServerStats!
}

type Mutation {
  appendMessage(subjectId: ID!, body: String!, role: Role!): Message!
  createSubject(input: SubjectInput!): Subject!
}
`

// Schema is the parsed SchemaSDL.
var Schema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: SchemaSDL})
