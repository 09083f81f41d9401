/*
Package types defines burrow's object model.

The controller keeps an object graph of Nodes, ResourceDefinitions with
their VolumeDefinitions, Resources with their Volumes, StorPoolDefinitions
with their StorPools, and the symmetric Node, Resource and Volume
connections. Every object carries a UUID that is assigned at creation and
never changes, and a natural key made of validated names and numbers.

Objects are created unregistered; Link adds them to their parents and
Unlink removes them. A deleted object first carries FlagDelete
(StateMarkedDeleted) and is removed from the graph once nothing depends on
it (StateRemoved).

The *Data records are the flattened, JSON-encodable form of each object.
The controller persists them and sends them to satellites.

Names compare case-insensitively through Key; String keeps the spelling
the object was created with.
*/
package types
